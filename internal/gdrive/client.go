package gdrive

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const (
	userAgent = "gdrive-mirror/0.1"

	// DefaultPageSize is the pageSize sent with files.list.
	DefaultPageSize = 100

	// maxPageSize is the largest pageSize files.list accepts.
	maxPageSize = 1000
)

// Options configures a Client.
type Options struct {
	// HTTPClient must already be authorized (see NewHTTPClient).
	HTTPClient *http.Client
	// Endpoint overrides the API base URL. Empty means production.
	Endpoint string
	PageSize int
	// RequestsPerSecond paces API calls. Zero or negative disables pacing.
	RequestsPerSecond float64
	Burst             int
	Logger            *slog.Logger
}

// Client is a read-only Drive v3 client. Every call waits on the rate
// limiter, then issues exactly one request; retrying is the caller's job.
type Client struct {
	svc      *drive.Service
	limiter  *rate.Limiter
	pageSize int64
	logger   *slog.Logger
}

// NewClient creates a Drive client.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.HTTPClient == nil {
		return nil, fmt.Errorf("gdrive: an authorized HTTP client is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	svcOpts := []option.ClientOption{
		option.WithHTTPClient(opts.HTTPClient),
		option.WithUserAgent(userAgent),
	}

	if opts.Endpoint != "" {
		svcOpts = append(svcOpts, option.WithEndpoint(opts.Endpoint))
	}

	svc, err := drive.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("gdrive: creating drive service: %w", err)
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := max(opts.Burst, 1)
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		svc:      svc,
		limiter:  limiter,
		pageSize: int64(pageSize),
		logger:   logger,
	}, nil
}

// NewHTTPClient returns an HTTP client that authorizes every request with
// tokens from ts. connectTimeout bounds TCP dialing only: downloads of large
// files must not be cut off by an overall request timeout.
func NewHTTPClient(ts oauth2.TokenSource, connectTimeout time.Duration) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if connectTimeout > 0 {
		base.DialContext = (&net.Dialer{Timeout: connectTimeout}).DialContext
	}

	return &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: base},
	}
}

// wait blocks until the rate limiter admits one request.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("gdrive: waiting for rate limiter: %w", err)
	}

	return nil
}
