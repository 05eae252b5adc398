package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

// mockLedger serializes every unit of work behind one mutex and applies
// staged writes only when the unit succeeds.
type mockLedger struct {
	mu        sync.Mutex
	stock     map[int64]domain.InventoryRecord
	purchases []domain.PurchaseRecord
	appendErr error
	units     int
	nextID    int
}

func newMockLedger(stock map[int64]int) *mockLedger {
	l := &mockLedger{stock: make(map[int64]domain.InventoryRecord)}
	for id, q := range stock {
		l.stock[id] = domain.InventoryRecord{ProductID: id, Quantity: q, Version: 1}
	}
	return l
}

func (l *mockLedger) quantity(productID int64) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.stock[productID]
	return rec.Quantity, ok
}

func (l *mockLedger) recorded() []domain.PurchaseRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.PurchaseRecord(nil), l.purchases...)
}

func (l *mockLedger) Get(ctx context.Context, productID int64) (*domain.InventoryRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.stock[productID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (l *mockLedger) SetAbsolute(ctx context.Context, productID int64, quantity int) (domain.InventoryRecord, error) {
	var rec domain.InventoryRecord
	err := l.WithinTx(ctx, productID, func(ctx context.Context, tx port.Tx) error {
		var err error
		rec, err = tx.SetAbsolute(ctx, productID, quantity)
		return err
	})
	return rec, err
}

func (l *mockLedger) DecrementIfSufficient(ctx context.Context, productID int64, amount int) (domain.InventoryRecord, error) {
	var rec domain.InventoryRecord
	err := l.WithinTx(ctx, productID, func(ctx context.Context, tx port.Tx) error {
		var err error
		rec, err = tx.DecrementIfSufficient(ctx, productID, amount)
		return err
	})
	return rec, err
}

func (l *mockLedger) WithinTx(ctx context.Context, productID int64, fn func(ctx context.Context, tx port.Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.units++

	tx := &mockTx{ledger: l, staged: make(map[int64]domain.InventoryRecord)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, rec := range tx.staged {
		l.stock[id] = rec
	}
	l.purchases = append(l.purchases, tx.appended...)
	return nil
}

type mockTx struct {
	ledger   *mockLedger
	staged   map[int64]domain.InventoryRecord
	appended []domain.PurchaseRecord
}

func (t *mockTx) Get(ctx context.Context, productID int64) (*domain.InventoryRecord, error) {
	if rec, ok := t.staged[productID]; ok {
		return &rec, nil
	}
	rec, ok := t.ledger.stock[productID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (t *mockTx) SetAbsolute(ctx context.Context, productID int64, quantity int) (domain.InventoryRecord, error) {
	if quantity < 0 {
		return domain.InventoryRecord{}, domain.ErrInvalidArgument
	}
	current, _ := t.Get(ctx, productID)
	next := domain.InventoryRecord{ProductID: productID, Quantity: quantity, Version: 1, UpdatedAt: time.Now()}
	if current != nil {
		next.Version = current.Version + 1
	}
	t.staged[productID] = next
	return next, nil
}

func (t *mockTx) DecrementIfSufficient(ctx context.Context, productID int64, amount int) (domain.InventoryRecord, error) {
	current, _ := t.Get(ctx, productID)
	if current == nil {
		return domain.InventoryRecord{}, domain.ErrProductNotFound
	}
	if current.Quantity < amount {
		return domain.InventoryRecord{}, domain.ErrInsufficientStock
	}
	next := *current
	next.Quantity -= amount
	next.Version++
	t.staged[productID] = next
	return next, nil
}

func (t *mockTx) Append(ctx context.Context, productID int64, quantity int) (domain.PurchaseRecord, error) {
	if t.ledger.appendErr != nil {
		return domain.PurchaseRecord{}, t.ledger.appendErr
	}
	t.ledger.nextID++
	rec := domain.PurchaseRecord{
		ID:        fmt.Sprintf("purchase-%d", t.ledger.nextID),
		ProductID: productID,
		Quantity:  quantity,
		CreatedAt: time.Now(),
	}
	t.appended = append(t.appended, rec)
	return rec, nil
}

type notification struct {
	productID int64
	quantity  int
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notification
}

func (n *recordingNotifier) NotifyInventoryChanged(ctx context.Context, productID int64, newQuantity int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notification{productID, newQuantity})
	return nil
}

func (n *recordingNotifier) received() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.calls...)
}

type failingNotifier struct{}

func (failingNotifier) NotifyInventoryChanged(ctx context.Context, productID int64, newQuantity int) error {
	return errors.New("broker unreachable")
}

type panickingNotifier struct{}

func (panickingNotifier) NotifyInventoryChanged(ctx context.Context, productID int64, newQuantity int) error {
	panic("notifier exploded")
}

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) Fetch(ctx context.Context, productID int64) (domain.ProductRef, error) {
	args := m.Called(ctx, productID)
	return args.Get(0).(domain.ProductRef), args.Error(1)
}
