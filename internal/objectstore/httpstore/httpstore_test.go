package httpstore_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/objectstore/httpstore"
)

func TestStoreFetch(t *testing.T) {
	tests := map[string]struct {
		key     string
		maxSize int64
		expData string
		expErr  error
		expAny  bool
	}{
		"An existing object should be returned.": {
			key:     "org/topic/report.html",
			expData: "<h1>report</h1>",
		},

		"A missing object should return not found.": {
			key:    "org/topic/missing.html",
			expErr: model.ErrNotFound,
		},

		"An object bigger than the max size should fail.": {
			key:     "org/topic/report.html",
			maxSize: 4,
			expAny:  true,
		},

		"A server error should fail.": {
			key:    "boom",
			expAny: true,
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files/org/topic/report.html":
			_, _ = w.Write([]byte("<h1>report</h1>"))
		case "/files/boom":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			s, err := httpstore.NewStore(httpstore.StoreConfig{BaseURL: srv.URL + "/files/", MaxObjectSize: test.maxSize})
			require.NoError(err)

			u, err := s.URL(context.TODO(), test.key)
			require.NoError(err)
			assert.True(strings.HasPrefix(u, srv.URL+"/files/"))

			data, err := s.Fetch(context.TODO(), test.key)
			switch {
			case test.expErr != nil:
				assert.ErrorIs(err, test.expErr)
			case test.expAny:
				assert.Error(err)
			default:
				assert.NoError(err)
				assert.Equal(test.expData, string(data))
			}
		})
	}
}
