package sts_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modernalchemist/magic-sub000/internal/credential"
	"github.com/modernalchemist/magic-sub000/internal/credential/sts"
)

const assumeRoleResponse = `<AssumeRoleResponse xmlns="https://sts.amazonaws.com/doc/2011-06-15/">
  <AssumeRoleResult>
    <Credentials>
      <AccessKeyId>ASIATEST</AccessKeyId>
      <SecretAccessKey>secret</SecretAccessKey>
      <SessionToken>token</SessionToken>
      <Expiration>2030-01-02T03:04:05Z</Expiration>
    </Credentials>
    <AssumedRoleUser>
      <Arn>arn:aws:sts::123456789012:assumed-role/magic/magic-t1</Arn>
      <AssumedRoleId>AROATEST:magic-t1</AssumedRoleId>
    </AssumedRoleUser>
  </AssumeRoleResult>
  <ResponseMetadata>
    <RequestId>c6104cbe-af31-11e0-8154-cbc7ccf896c7</RequestId>
  </ResponseMetadata>
</AssumeRoleResponse>`

func TestIssuerIssue(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var gotAction, gotPolicy, gotSessionName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotAction = r.Form.Get("Action")
		gotPolicy = r.Form.Get("Policy")
		gotSessionName = r.Form.Get("RoleSessionName")
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(assumeRoleResponse))
	}))
	defer srv.Close()

	i, err := sts.NewIssuer(sts.IssuerConfig{
		RoleARN:         "arn:aws:iam::123456789012:role/magic",
		Bucket:          "magic",
		STSEndpoint:     srv.URL,
		AccessKeyID:     "ak",
		SecretAccessKey: "sk",
		DirPrefix:       "workspaces",
	})
	require.NoError(err)

	got, err := i.Issue(context.TODO(), credential.IssueRequest{OrganizationCode: "org1", UserID: "u1", TopicID: "t1"})
	require.NoError(err)

	assert.Equal("AssumeRole", gotAction)
	assert.Equal("magic-t1", gotSessionName)
	assert.Contains(gotPolicy, "arn:aws:s3:::magic/workspaces/org1/u1/t1/*")

	assert.Equal("aws", got.Platform)
	assert.Equal("ASIATEST", got.AccessKeyID)
	assert.Equal("secret", got.SecretAccessKey)
	assert.Equal("token", got.SessionToken)
	assert.Equal("workspaces/org1/u1/t1/", got.Dir)
	assert.Equal(time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC), got.ExpiresAt.UTC())
}

func TestNewIssuerConfig(t *testing.T) {
	tests := map[string]struct {
		cfg    sts.IssuerConfig
		expErr bool
	}{
		"Missing role should fail.": {
			cfg:    sts.IssuerConfig{Bucket: "b"},
			expErr: true,
		},

		"Missing bucket should fail.": {
			cfg:    sts.IssuerConfig{RoleARN: "r"},
			expErr: true,
		},

		"A too short duration should fail.": {
			cfg:    sts.IssuerConfig{RoleARN: "r", Bucket: "b", Duration: time.Minute},
			expErr: true,
		},

		"A valid config should not fail.": {
			cfg: sts.IssuerConfig{RoleARN: "r", Bucket: "b"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := sts.NewIssuer(test.cfg)
			if test.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
