package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.InventoryChanged
	fail   func(domain.InventoryChanged) error
}

func (p *recordingPublisher) Publish(ctx context.Context, event domain.InventoryChanged) error {
	if p.fail != nil {
		if err := p.fail(event); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) published() []domain.InventoryChanged {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.InventoryChanged(nil), p.events...)
}

type blockingPublisher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *blockingPublisher) Publish(ctx context.Context, event domain.InventoryChanged) error {
	p.once.Do(func() { close(p.started) })
	<-p.release
	return nil
}

func TestDispatcher_PublishesEveryEvent(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewDispatcher(pub, DispatcherConfig{Workers: 4, QueueSize: 100, PublishTimeout: time.Second}, zaptest.NewLogger(t))

	for i := 0; i < 50; i++ {
		require.NoError(t, d.NotifyInventoryChanged(context.Background(), int64(i), i*2))
	}
	d.Close()

	events := pub.published()
	require.Len(t, events, 50)

	seen := make(map[string]bool)
	for _, e := range events {
		assert.NotEmpty(t, e.EventID)
		assert.False(t, seen[e.EventID], "event ids must be unique")
		seen[e.EventID] = true
		assert.Equal(t, int(e.ProductID)*2, e.NewQuantity)
		assert.False(t, e.OccurredAt.IsZero())
	}
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	pub := &blockingPublisher{started: make(chan struct{}), release: make(chan struct{})}
	d := NewDispatcher(pub, DispatcherConfig{Workers: 1, QueueSize: 1}, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, d.NotifyInventoryChanged(ctx, 1, 1))
	<-pub.started
	require.NoError(t, d.NotifyInventoryChanged(ctx, 1, 2))

	err := d.NotifyInventoryChanged(ctx, 1, 3)
	assert.ErrorIs(t, err, ErrQueueFull)

	close(pub.release)
	d.Close()
}

func TestDispatcher_SurvivesPublisherFailures(t *testing.T) {
	pub := &recordingPublisher{fail: func(e domain.InventoryChanged) error {
		switch e.ProductID {
		case 1:
			return errors.New("broker down")
		case 2:
			panic("publisher bug")
		}
		return nil
	}}
	d := NewDispatcher(pub, DispatcherConfig{Workers: 1, QueueSize: 10}, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, d.NotifyInventoryChanged(ctx, 1, 0))
	require.NoError(t, d.NotifyInventoryChanged(ctx, 2, 0))
	require.NoError(t, d.NotifyInventoryChanged(ctx, 3, 0))
	d.Close()

	events := pub.published()
	require.Len(t, events, 1)
	assert.Equal(t, int64(3), events[0].ProductID)
}

func TestDispatcher_RejectsAfterClose(t *testing.T) {
	d := NewDispatcher(&recordingPublisher{}, DispatcherConfig{Workers: 1, QueueSize: 1}, zaptest.NewLogger(t))
	d.Close()
	d.Close()

	err := d.NotifyInventoryChanged(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDispatcher_WithoutLogger(t *testing.T) {
	pub := &recordingPublisher{fail: func(e domain.InventoryChanged) error {
		return errors.New("broker down")
	}}
	d := NewDispatcher(pub, DispatcherConfig{Workers: 1, QueueSize: 1}, nil)

	require.NoError(t, d.NotifyInventoryChanged(context.Background(), 1, 1))
	d.Close()
	assert.Empty(t, pub.published())
}
