package credential_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/modernalchemist/magic-sub000/internal/credential"
)

func TestDir(t *testing.T) {
	tests := map[string]struct {
		prefix string
		req    credential.IssueRequest
		exp    string
	}{
		"A full request should be nested under the prefix.": {
			prefix: "/magic/",
			req:    credential.IssueRequest{OrganizationCode: "org1", UserID: "u1", TopicID: "t1"},
			exp:    "magic/org1/u1/t1/",
		},

		"Missing parts should be ignored.": {
			prefix: "magic",
			req:    credential.IssueRequest{TopicID: "t1"},
			exp:    "magic/t1/",
		},

		"Without prefix should start with the organization.": {
			req: credential.IssueRequest{OrganizationCode: "org1", UserID: "u1", TopicID: "t1"},
			exp: "org1/u1/t1/",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, credential.Dir(test.prefix, test.req))
		})
	}
}
