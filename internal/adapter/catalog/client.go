package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

const apiKeyHeader = "X-API-KEY"

var _ port.ProductCatalog = (*Client)(nil)

var errNotFound = errors.New("catalog returned 404")

// Outcome classifies a catalog lookup.
type Outcome int

const (
	Found Outcome = iota
	NotFound
	Unavailable
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	default:
		return "unavailable"
	}
}

type Result struct {
	Outcome Outcome
	Product domain.ProductRef
	Err     error
}

type Config struct {
	BaseURL         string
	APIKey          string
	Timeout         time.Duration // per attempt
	MaxRetries      uint64
	InitialInterval time.Duration
}

type productResponse struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
}

// Client resolves products against the external catalog service.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		logger: logger.Named("catalog"),
	}
}

// Fetch returns the product or ErrProductNotFound / ErrExternalService.
func (c *Client) Fetch(ctx context.Context, productID int64) (domain.ProductRef, error) {
	res := c.Lookup(ctx, productID)
	switch res.Outcome {
	case Found:
		return res.Product, nil
	case NotFound:
		return domain.ProductRef{}, fmt.Errorf("%w: catalog has no product %d", domain.ErrProductNotFound, productID)
	default:
		return domain.ProductRef{}, fmt.Errorf("%w: catalog lookup of product %d: %v", domain.ErrExternalService, productID, res.Err)
	}
}

// Lookup asks the catalog for a product. Transport failures and non-404
// error statuses are retried with exponential backoff; a 404 is final.
func (c *Client) Lookup(ctx context.Context, productID int64) Result {
	var product domain.ProductRef

	op := func() error {
		p, err := c.fetchOnce(ctx, productID)
		if err != nil {
			return err
		}
		product = p
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("catalog lookup failed, retrying",
			zap.Int64("product_id", productID),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.cfg.MaxRetries), ctx), notify)
	switch {
	case err == nil:
		return Result{Outcome: Found, Product: product}
	case errors.Is(err, errNotFound):
		return Result{Outcome: NotFound, Err: err}
	default:
		c.logger.Error("catalog unavailable", zap.Int64("product_id", productID), zap.Error(err))
		return Result{Outcome: Unavailable, Err: err}
	}
}

func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.MaxElapsedTime = 0
	return b
}

func (c *Client) fetchOnce(ctx context.Context, productID int64) (domain.ProductRef, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	url := c.cfg.BaseURL + "/products/" + strconv.FormatInt(productID, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.ProductRef{}, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set(apiKeyHeader, c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.ProductRef{}, fmt.Errorf("call catalog: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ProductRef{}, backoff.Permanent(errNotFound)
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return domain.ProductRef{}, fmt.Errorf("catalog returned %d", resp.StatusCode)
	}

	var body productResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.ProductRef{}, fmt.Errorf("decode product: %w", err)
	}

	return domain.ProductRef{
		ID:          productID,
		Name:        body.Name,
		Price:       body.Price,
		Description: body.Description,
	}, nil
}
