package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

const (
	inventoryKeyPrefix = "inventory:"
	purchasesKeyPrefix = "purchases:"

	fieldQuantity  = "quantity"
	fieldVersion   = "version"
	fieldUpdatedAt = "updated_at"

	defaultMaxCASRetries = 100
)

func inventoryKey(productID int64) string {
	return inventoryKeyPrefix + strconv.FormatInt(productID, 10)
}

func purchasesKey(productID int64) string {
	return purchasesKeyPrefix + strconv.FormatInt(productID, 10)
}

type purchaseEntry struct {
	ID        string    `json:"id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisStore keeps each product's stock in a hash and its purchases in a list.
// Units of work WATCH the hash and commit with MULTI/EXEC, retrying when
// another writer got there first.
type RedisStore struct {
	client     *redis.Client
	maxRetries int
	now        func() time.Time
	newID      func() string
}

func NewRedisStore(client *redis.Client, maxRetries int) *RedisStore {
	if maxRetries <= 0 {
		maxRetries = defaultMaxCASRetries
	}
	return &RedisStore{client: client, maxRetries: maxRetries, now: utcNow, newID: newPurchaseID}
}

func (r *RedisStore) Get(ctx context.Context, productID int64) (*domain.InventoryRecord, error) {
	return readInventory(ctx, r.client, productID)
}

func (r *RedisStore) SetAbsolute(ctx context.Context, productID int64, quantity int) (domain.InventoryRecord, error) {
	return setAbsolute(ctx, r, productID, quantity)
}

func (r *RedisStore) DecrementIfSufficient(ctx context.Context, productID int64, amount int) (domain.InventoryRecord, error) {
	return decrementIfSufficient(ctx, r, productID, amount)
}

func (r *RedisStore) ListPurchases(ctx context.Context, productID int64) ([]domain.PurchaseRecord, error) {
	raw, err := r.client.LRange(ctx, purchasesKey(productID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read purchases: %w", err)
	}

	out := make([]domain.PurchaseRecord, 0, len(raw))
	for _, s := range raw {
		var e purchaseEntry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return nil, fmt.Errorf("%w: decode purchase entry: %v", domain.ErrInternalInconsistency, err)
		}
		out = append(out, domain.PurchaseRecord{ID: e.ID, ProductID: e.ProductID, Quantity: e.Quantity, CreatedAt: e.CreatedAt})
	}
	return out, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) WithinTx(ctx context.Context, productID int64, fn func(ctx context.Context, tx port.Tx) error) error {
	key := inventoryKey(productID)

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		err := r.client.Watch(ctx, func(rtx *redis.Tx) error {
			tx := &redisTx{store: r, rtx: rtx, productID: productID}
			if err := fn(ctx, tx); err != nil {
				return err
			}
			if tx.staged == nil && len(tx.appended) == 0 {
				return nil
			}
			_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				return tx.flush(ctx, pipe)
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return fmt.Errorf("%w: product %d still contended after %d attempts",
		ErrOptimisticLock, productID, r.maxRetries)
}

type redisTx struct {
	store     *RedisStore
	rtx       *redis.Tx
	productID int64
	staged    *domain.InventoryRecord
	appended  []domain.PurchaseRecord
}

func (t *redisTx) Get(ctx context.Context, productID int64) (*domain.InventoryRecord, error) {
	if err := checkScope(t.productID, productID); err != nil {
		return nil, err
	}
	if t.staged != nil {
		rec := *t.staged
		return &rec, nil
	}
	return readInventory(ctx, t.rtx, productID)
}

func (t *redisTx) SetAbsolute(ctx context.Context, productID int64, quantity int) (domain.InventoryRecord, error) {
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

func (t *redisTx) DecrementIfSufficient(ctx context.Context, productID int64, amount int) (domain.InventoryRecord, error) {
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

func (t *redisTx) Append(ctx context.Context, productID int64, quantity int) (domain.PurchaseRecord, error) {
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

func (t *redisTx) flush(ctx context.Context, pipe redis.Pipeliner) error {
	if t.staged != nil {
		pipe.HSet(ctx, inventoryKey(t.productID),
			fieldQuantity, t.staged.Quantity,
			fieldVersion, t.staged.Version,
			fieldUpdatedAt, t.staged.UpdatedAt.UnixNano(),
		)
	}
	for _, p := range t.appended {
		payload, err := json.Marshal(purchaseEntry{ID: p.ID, ProductID: p.ProductID, Quantity: p.Quantity, CreatedAt: p.CreatedAt})
		if err != nil {
			return fmt.Errorf("encode purchase entry: %w", err)
		}
		pipe.RPush(ctx, purchasesKey(t.productID), payload)
	}
	return nil
}

// hashReader is satisfied by both *redis.Client and *redis.Tx.
type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func readInventory(ctx context.Context, c hashReader, productID int64) (*domain.InventoryRecord, error) {
	fields, err := c.HGetAll(ctx, inventoryKey(productID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	quantity, err := strconv.Atoi(fields[fieldQuantity])
	if err != nil {
		return nil, fmt.Errorf("%w: quantity field of product %d: %v", domain.ErrInternalInconsistency, productID, err)
	}
	version, err := strconv.Atoi(fields[fieldVersion])
	if err != nil {
		return nil, fmt.Errorf("%w: version field of product %d: %v", domain.ErrInternalInconsistency, productID, err)
	}
	updatedAt, err := strconv.ParseInt(fields[fieldUpdatedAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: updated_at field of product %d: %v", domain.ErrInternalInconsistency, productID, err)
	}

	return &domain.InventoryRecord{
		ProductID: productID,
		Quantity:  quantity,
		Version:   version,
		UpdatedAt: time.Unix(0, updatedAt).UTC(),
	}, nil
}
