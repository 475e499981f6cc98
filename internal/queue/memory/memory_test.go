package memory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modernalchemist/magic-sub000/internal/queue"
	"github.com/modernalchemist/magic-sub000/internal/queue/memory"
)

func TestQueueOrder(t *testing.T) {
	require := require.New(t)

	q, err := memory.NewQueue(memory.QueueConfig{})
	require.NoError(err)

	for i := 0; i < 10; i++ {
		err := q.Publish(context.TODO(), queue.Message{Key: "sbx-1", Body: []byte(fmt.Sprint(i))})
		require.NoError(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Run(ctx, func(_ context.Context, msg queue.Message) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, string(msg.Body))
			if len(got) == 3 {
				return errors.New("handler errors don't stop the consumer")
			}
			if len(got) == 10 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not finish")
	}

	assert.Equal(t, []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}, got)
}

func TestQueuePublishFullCancelled(t *testing.T) {
	require := require.New(t)

	q, err := memory.NewQueue(memory.QueueConfig{Capacity: 1})
	require.NoError(err)
	require.NoError(q.Publish(context.TODO(), queue.Message{Key: "k"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = q.Publish(ctx, queue.Message{Key: "k"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
