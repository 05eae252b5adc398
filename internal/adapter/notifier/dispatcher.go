package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

var (
	ErrQueueFull = errors.New("notification queue full")
	ErrClosed    = errors.New("notifier closed")
)

var _ port.ChangeNotifier = (*Dispatcher)(nil)

type DispatcherConfig struct {
	Workers        int
	QueueSize      int
	PublishTimeout time.Duration
}

// Dispatcher turns change signals into events and hands them to a pool of
// workers that push them to the publisher. Enqueueing never blocks: when the
// queue is full the event is dropped.
type Dispatcher struct {
	publisher port.EventPublisher
	logger    *zap.Logger
	timeout   time.Duration
	queue     chan domain.InventoryChanged
	wg        sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(publisher port.EventPublisher, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}

	d := &Dispatcher{
		publisher: publisher,
		logger:    logger.Named("notifier"),
		timeout:   cfg.PublishTimeout,
		queue:     make(chan domain.InventoryChanged, cfg.QueueSize),
	}

	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
	return d
}

func (d *Dispatcher) NotifyInventoryChanged(ctx context.Context, productID int64, newQuantity int) error {
	event := domain.InventoryChanged{
		EventID:     uuid.NewString(),
		ProductID:   productID,
		NewQuantity: newQuantity,
		OccurredAt:  time.Now().UTC(),
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	select {
	case d.queue <- event:
		return nil
	default:
		d.logger.Warn("dropping inventory change event",
			zap.Int64("product_id", productID),
			zap.Int("new_quantity", newQuantity),
		)
		return ErrQueueFull
	}
}

// Close stops accepting events and waits for queued ones to be published.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) workerLoop(id int) {
	for event := range d.queue {
		if err := d.publish(event); err != nil {
			d.logger.Error("failed to publish inventory change",
				zap.Int("worker", id),
				zap.String("event_id", event.EventID),
				zap.Int64("product_id", event.ProductID),
				zap.Error(err),
			)
			continue
		}
		d.logger.Debug("inventory change published",
			zap.Int("worker", id),
			zap.String("event_id", event.EventID),
			zap.Int64("product_id", event.ProductID),
		)
	}
}

func (d *Dispatcher) publish(event domain.InventoryChanged) (err error) {
	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("publisher panicked: %v", r)
		}
	}()
	return d.publisher.Publish(ctx, event)
}
