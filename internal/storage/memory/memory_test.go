package memory_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modernalchemist/magic-sub000/internal/log"
	"github.com/modernalchemist/magic-sub000/internal/storage"
	"github.com/modernalchemist/magic-sub000/internal/storage/memory"
	"github.com/modernalchemist/magic-sub000/internal/storage/storagetest"
)

func TestRepository(t *testing.T) {
	storagetest.RunRepositoryTests(t, func(t *testing.T) storage.Repository {
		repo, err := memory.NewRepository(memory.RepositoryConfig{Logger: log.Noop})
		require.NoError(t, err)
		return repo
	})
}
