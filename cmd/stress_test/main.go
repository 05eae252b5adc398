package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/rl1809/stock-ledger/internal/adapter/handler"
	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
	"github.com/rl1809/stock-ledger/internal/port"
)

// target abstracts where purchases are sent: an in-process store or a running server.
type target interface {
	setStock(ctx context.Context, productID int64, quantity int) error
	purchase(ctx context.Context, productID int64, quantity int) error
	stock(ctx context.Context, productID int64) (int, error)
	close() error
}

func main() {
	app := &cli.App{
		Name:  "stress_test",
		Usage: "fire concurrent purchases at one product and verify stock never oversells",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "driver", Value: config.DriverMemory, Usage: "memory, mysql or redis (in-process mode)"},
			&cli.StringFlag{Name: "mysql-dsn", Value: "root:root@tcp(localhost:3306)/stockledger?parseTime=true", EnvVars: []string{"MYSQL_DSN"}},
			&cli.StringFlag{Name: "redis-addr", Value: "localhost:6379", EnvVars: []string{"REDIS_ADDR"}},
			&cli.StringFlag{Name: "grpc-addr", Usage: "drive a running server over gRPC instead of an in-process store"},
			&cli.Int64Flag{Name: "product-id", Value: 1},
			&cli.IntFlag{Name: "stock", Value: 20},
			&cli.IntFlag{Name: "requests", Value: 50},
			&cli.IntFlag{Name: "quantity", Value: 1, Usage: "units per purchase"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	ctx := c.Context
	productID := c.Int64("product-id")
	initialStock := c.Int("stock")
	totalRequests := c.Int("requests")
	quantity := c.Int("quantity")
	if quantity <= 0 || totalRequests <= 0 || initialStock < 0 {
		return cli.Exit("quantity and requests must be positive, stock must not be negative", 2)
	}
	if quantity > domain.MaxQuantity || initialStock > domain.MaxQuantity {
		return cli.Exit(fmt.Sprintf("quantity and stock must not exceed %d", domain.MaxQuantity), 2)
	}

	t, err := newTarget(ctx, c)
	if err != nil {
		return err
	}
	defer t.close()

	if err := t.setStock(ctx, productID, initialStock); err != nil {
		return fmt.Errorf("set stock: %w", err)
	}

	var successCount, rejectedCount, errorCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			err := t.purchase(ctx, productID, quantity)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				rejectedCount.Add(1)
			default:
				errorCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := int(successCount.Load())
	rejected := int(rejectedCount.Load())
	failed := int(errorCount.Load())
	expectedSuccess := min(totalRequests, initialStock/quantity)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d x %d\n", totalRequests, quantity)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold Out:         %d\n", rejected)
	fmt.Printf("Errors:           %d\n", failed)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	passed := true
	if success == expectedSuccess && rejected == totalRequests-expectedSuccess && failed == 0 {
		fmt.Printf("PASS: exactly %d purchases succeeded, %d sold out\n", success, rejected)
	} else {
		fmt.Printf("FAIL: expected %d success/%d sold out, got %d/%d (%d errors)\n",
			expectedSuccess, totalRequests-expectedSuccess, success, rejected, failed)
		passed = false
	}

	finalStock, err := t.stock(ctx, productID)
	if err != nil {
		return fmt.Errorf("read final stock: %w", err)
	}
	expectedStock := initialStock - success*quantity
	fmt.Printf("Final Stock:      %d\n", finalStock)
	if finalStock == expectedStock && finalStock >= 0 {
		fmt.Printf("PASS: stock settled at %d\n", finalStock)
	} else {
		fmt.Printf("FAIL: expected stock %d, got %d\n", expectedStock, finalStock)
		passed = false
	}

	if !passed {
		return cli.Exit("stress test failed", 1)
	}
	return nil
}

func newTarget(ctx context.Context, c *cli.Context) (target, error) {
	if addr := c.String("grpc-addr"); addr != "" {
		conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		return &remoteTarget{conn: conn, client: handler.NewInventoryClient(conn)}, nil
	}

	var (
		store   port.Store
		closeFn = func() error { return nil }
	)
	switch c.String("driver") {
	case config.DriverMySQL:
		db, err := sqlx.Open("mysql", c.String("mysql-dsn"))
		if err != nil {
			return nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("connect mysql: %w", err)
		}
		if err := storage.MigrateMySQL(db.DB); err != nil {
			return nil, err
		}
		store, closeFn = storage.NewMySQLStore(db), db.Close
	case config.DriverRedis:
		rdb := redis.NewClient(&redis.Options{Addr: c.String("redis-addr"), PoolSize: 100})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		store, closeFn = storage.NewRedisStore(rdb, 1000), rdb.Close
	case config.DriverMemory:
		store = storage.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown driver %q", c.String("driver"))
	}

	return &localTarget{
		store:     store,
		purchases: service.NewPurchaseService(store, nil, zap.NewNop()),
		closeFn:   closeFn,
	}, nil
}

type localTarget struct {
	store     port.Store
	purchases *service.PurchaseService
	closeFn   func() error
}

func (l *localTarget) setStock(ctx context.Context, productID int64, quantity int) error {
	_, err := l.store.SetAbsolute(ctx, productID, quantity)
	return err
}

func (l *localTarget) purchase(ctx context.Context, productID int64, quantity int) error {
	_, err := l.purchases.ProcessPurchase(ctx, productID, quantity)
	return err
}

func (l *localTarget) stock(ctx context.Context, productID int64) (int, error) {
	rec, err := l.store.Get(ctx, productID)
	if err != nil || rec == nil {
		return 0, err
	}
	return rec.Quantity, nil
}

func (l *localTarget) close() error { return l.closeFn() }

type remoteTarget struct {
	conn   *grpc.ClientConn
	client *handler.InventoryClient
}

func (r *remoteTarget) setStock(ctx context.Context, productID int64, quantity int) error {
	_, err := r.client.SetInventoryQuantity(ctx, &handler.SetInventoryQuantityRequest{ProductID: productID, Quantity: int32(quantity)})
	return err
}

func (r *remoteTarget) purchase(ctx context.Context, productID int64, quantity int) error {
	_, err := r.client.ProcessPurchase(ctx, &handler.ProcessPurchaseRequest{ProductID: productID, Quantity: int32(quantity)})
	if status.Code(err) == codes.FailedPrecondition {
		return fmt.Errorf("%w: %v", domain.ErrInsufficientStock, err)
	}
	return err
}

func (r *remoteTarget) stock(ctx context.Context, productID int64) (int, error) {
	reply, err := r.client.GetInventory(ctx, &handler.GetInventoryRequest{ProductID: productID})
	if err != nil {
		return 0, err
	}
	return int(reply.Quantity), nil
}

func (r *remoteTarget) close() error { return r.conn.Close() }
