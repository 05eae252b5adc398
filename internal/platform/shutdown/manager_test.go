package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestManager_RunsInReverseOrder(t *testing.T) {
	m := New(time.Second, zaptest.NewLogger(t))

	var order []string
	for _, name := range []string{"store", "notifier", "http"} {
		name := name
		m.Add(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	m.Shutdown()
	assert.Equal(t, []string{"http", "notifier", "store"}, order)
}

func TestManager_ContinuesAfterFailure(t *testing.T) {
	m := New(time.Second, zaptest.NewLogger(t))

	ran := false
	m.Add("first", func(context.Context) error { ran = true; return nil })
	m.Add("broken", func(context.Context) error { return errors.New("boom") })

	m.Shutdown()
	assert.True(t, ran)
}

func TestManager_StepsGetATimeout(t *testing.T) {
	m := New(10*time.Millisecond, zaptest.NewLogger(t))

	var deadlineSet bool
	m.Add("slow", func(ctx context.Context) error {
		_, deadlineSet = ctx.Deadline()
		<-ctx.Done()
		return ctx.Err()
	})

	m.Shutdown()
	assert.True(t, deadlineSet)
}

func TestManager_WaitReturnsWhenContextDone(t *testing.T) {
	m := New(time.Second, zaptest.NewLogger(t))
	called := false
	m.Add("x", func(context.Context) error { called = true; return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Wait(ctx)
	assert.True(t, called)
}

type fakeGRPC struct {
	block   chan struct{}
	stopped bool
}

func (f *fakeGRPC) GracefulStop() { <-f.block }
func (f *fakeGRPC) Stop()         { f.stopped = true; close(f.block) }

func TestShutdownGRPCServer_ForcesStopOnTimeout(t *testing.T) {
	srv := &fakeGRPC{block: make(chan struct{})}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := ShutdownGRPCServer(srv)(ctx)
	assert.Error(t, err)
	assert.True(t, srv.stopped)
}
