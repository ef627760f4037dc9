package dialer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueueRunsInOrder(t *testing.T) {
	q := NewQueue()
	var got []int
	for i := 0; i < 3; i++ {
		i := i
		q.Post(func() { got = append(got, i) })
	}
	q.Post(func() { q.Post(func() { got = append(got, 99) }) })

	assert.Equal(t, 4, q.Len())
	assert.Equal(t, 5, q.RunPending())
	assert.Equal(t, []int{0, 1, 2, 99}, got)
	assert.Zero(t, q.Len())
}

func TestQueueRunStopsWithContext(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{})
	errc := make(chan error, 1)
	go func() { errc <- q.Run(ctx) }()

	q.Post(func() { close(ran) })
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("posted callback did not run")
	}
	cancel()
	select {
	case err := <-errc:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}
