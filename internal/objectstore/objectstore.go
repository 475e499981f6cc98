package objectstore

import (
	"context"
	"fmt"
	"io"
)

// DefaultMaxObjectSize is the maximum object size fetched in memory by default.
const DefaultMaxObjectSize = 10 * 1024 * 1024

// Store gives access to the files the agents upload.
type Store interface {
	// Fetch returns the content of an object. Missing objects return model.ErrNotFound.
	Fetch(ctx context.Context, key string) ([]byte, error)
	// URL returns an URL the agent can download the object from.
	URL(ctx context.Context, key string) (string, error)
}

// ReadLimited reads r up to max bytes, bigger contents are an error.
func ReadLimited(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("could not read object: %w", err)
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("object bigger than %d bytes", max)
	}
	return data, nil
}
