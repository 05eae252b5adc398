package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

// MemoryStore keeps the ledger and the purchase log in process memory.
// Units of work hold a per-product mutex, so different products never contend.
type MemoryStore struct {
	mu        sync.RWMutex
	inventory map[int64]domain.InventoryRecord
	purchases map[int64][]domain.PurchaseRecord

	locks keyedMutex
	now   func() time.Time
	newID func() string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		inventory: make(map[int64]domain.InventoryRecord),
		purchases: make(map[int64][]domain.PurchaseRecord),
		locks:     keyedMutex{locks: make(map[int64]*sync.Mutex)},
		now:       utcNow,
		newID:     newPurchaseID,
	}
}

func (s *MemoryStore) Get(ctx context.Context, productID int64) (*domain.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.inventory[productID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) SetAbsolute(ctx context.Context, productID int64, quantity int) (domain.InventoryRecord, error) {
	return setAbsolute(ctx, s, productID, quantity)
}

func (s *MemoryStore) DecrementIfSufficient(ctx context.Context, productID int64, amount int) (domain.InventoryRecord, error) {
	return decrementIfSufficient(ctx, s, productID, amount)
}

func (s *MemoryStore) ListPurchases(ctx context.Context, productID int64) ([]domain.PurchaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PurchaseRecord, len(s.purchases[productID]))
	copy(out, s.purchases[productID])
	return out, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) WithinTx(ctx context.Context, productID int64, fn func(ctx context.Context, tx port.Tx) error) error {
	unlock := s.locks.lock(productID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{store: s, productID: productID}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.staged != nil {
		s.inventory[productID] = *tx.staged
	}
	s.purchases[productID] = append(s.purchases[productID], tx.appended...)
	return nil
}

type memoryTx struct {
	store     *MemoryStore
	productID int64
	staged    *domain.InventoryRecord
	appended  []domain.PurchaseRecord
}

func (t *memoryTx) Get(ctx context.Context, productID int64) (*domain.InventoryRecord, error) {
	if err := checkScope(t.productID, productID); err != nil {
		return nil, err
	}
	if t.staged != nil {
		rec := *t.staged
		return &rec, nil
	}
	return t.store.Get(ctx, productID)
}

func (t *memoryTx) SetAbsolute(ctx context.Context, productID int64, quantity int) (domain.InventoryRecord, error) {
	if err := checkSetQuantity(quantity); err != nil {
		return domain.InventoryRecord{}, err
	}
	current, err := t.Get(ctx, productID)
	if err != nil {
		return domain.InventoryRecord{}, err
	}

	next := domain.InventoryRecord{ProductID: productID, Quantity: quantity, UpdatedAt: t.store.now()}
	if current != nil {
		next.Version = current.Version
	}
	next.Version++
	t.staged = &next
	return next, nil
}

func (t *memoryTx) DecrementIfSufficient(ctx context.Context, productID int64, amount int) (domain.InventoryRecord, error) {
	if err := checkAmount(amount); err != nil {
		return domain.InventoryRecord{}, err
	}
	current, err := t.Get(ctx, productID)
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	if current == nil {
		return domain.InventoryRecord{}, productNotFound(productID)
	}
	if current.Quantity-amount < 0 {
		return domain.InventoryRecord{}, insufficientStock(productID, current.Quantity, amount)
	}

	next := *current
	next.Quantity -= amount
	next.Version++
	next.UpdatedAt = t.store.now()
	t.staged = &next
	return next, nil
}

func (t *memoryTx) Append(ctx context.Context, productID int64, quantity int) (domain.PurchaseRecord, error) {
	if err := checkScope(t.productID, productID); err != nil {
		return domain.PurchaseRecord{}, err
	}
	if err := checkAmount(quantity); err != nil {
		return domain.PurchaseRecord{}, err
	}

	rec := domain.PurchaseRecord{
		ID:        t.store.newID(),
		ProductID: productID,
		Quantity:  quantity,
		CreatedAt: t.store.now(),
	}
	t.appended = append(t.appended, rec)
	return rec, nil
}

// keyedMutex hands out one mutex per product id. Entries are never evicted,
// which matches the ledger itself: records are never deleted either.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func (k *keyedMutex) lock(productID int64) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[productID]
	if !ok {
		l = &sync.Mutex{}
		k.locks[productID] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
