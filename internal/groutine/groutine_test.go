package groutine

import (
	"context"
	"runtime/pprof"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGo_PropagatesNameAndLabel(t *testing.T) {
	var name, label string
	done := Go(context.Background(), "trigger-loop", func(ctx context.Context) {
		name = Name(ctx)
		label, _ = pprof.Label(ctx, "goroutine_name")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "goroutine did not finish")
	}
	assert.Equal(t, "trigger-loop", name)
	assert.Equal(t, "trigger-loop", label)
}

func TestGo_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := Go(ctx, "waiter", func(ctx context.Context) {
		<-ctx.Done()
	})

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "goroutine ignored cancellation")
	}
}

func TestName_Unnamed(t *testing.T) {
	assert.Equal(t, "", Name(context.Background()))
	//nolint:staticcheck // nil context is handled
	assert.Equal(t, "", Name(nil))
}
