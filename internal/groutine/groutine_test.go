package groutine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGoRunsWithName(t *testing.T) {
	got := make(chan string, 1)
	Go(context.Background(), "test-worker", func(ctx context.Context) {
		got <- GetName(ctx)
	})

	select {
	case name := <-got:
		assert.Equal(t, "test-worker", name)
	case <-time.After(time.Second):
		t.Fatal("goroutine never ran")
	}
}

func TestGoNilParentContext(t *testing.T) {
	done := make(chan struct{})
	Go(nil, "nil-parent", func(ctx context.Context) {
		assert.NotNil(t, ctx)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine never ran")
	}
}

func TestGetNameFallbacks(t *testing.T) {
	assert.Empty(t, GetName(nil))
	assert.Empty(t, GetName(context.Background()))
}
