package conventions_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/modernalchemist/magic-sub000/internal/conventions"
)

func TestDBPath(t *testing.T) {
	assert.Equal(t, "/home/u/.magic/magic.db", conventions.DBPath("/home/u"))
}
