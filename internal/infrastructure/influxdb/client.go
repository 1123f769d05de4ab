package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/airlink/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Logger receives asynchronous write failures.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Warn(msg string, args ...any)
}

// Options identify the appliance a Client records for.
type Options struct {
	// Serial is written as the serial tag on every point.
	Serial string

	// Logger receives write failures; nil discards them.
	Logger Logger
}

// Client records one appliance's telemetry in an InfluxDB v2 bucket.
//
// Points are buffered and written in batches on the library's goroutines.
// Record methods never block on the network and never fail; rejected
// batches are logged and counted instead.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	serial   string
	logger   Logger

	// mu is held shared while a point is queued so Close cannot tear the
	// write API down underneath it.
	mu     sync.RWMutex
	closed bool

	failures atomic.Uint64
	drained  chan struct{}
}

// Connect pings InfluxDB and opens a batched writer for cfg.Bucket.
//
// Parameters:
//   - ctx: bounds the initial ping together with a 10s limit
//   - cfg: the influxdb section of the configuration
//   - opts: serial tag and failure logger
//
// Returns:
//   - *Client: ready to record
//   - error: ErrTelemetryDisabled, ErrUnreachable or ErrUnhealthy
func Connect(ctx context.Context, cfg config.InfluxDBConfig, opts Options) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrTelemetryDisabled
	}

	batchSize := defaultBatchSize
	if cfg.BatchSize > 0 {
		batchSize = cfg.BatchSize
	}
	flushInterval := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flushInterval = time.Duration(cfg.FlushInterval) * time.Second
	}

	// #nosec G115 -- both values are positive
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval.Milliseconds())),
	)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := ping(pingCtx, client); err != nil {
		client.Close()
		return nil, err
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		serial:   opts.Serial,
		logger:   opts.Logger,
		drained:  make(chan struct{}),
	}
	// Errors must be requested before the first write to be delivered.
	go c.collectFailures(c.writeAPI.Errors())

	return c, nil
}

func ping(ctx context.Context, client influxdb2.Client) error {
	ready, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	if !ready {
		return ErrUnhealthy
	}
	return nil
}

// collectFailures runs until the write API closes its error channel.
func (c *Client) collectFailures(errs <-chan error) {
	defer close(c.drained)
	for err := range errs {
		n := c.failures.Add(1)
		if c.logger != nil {
			c.logger.Warn("telemetry batch rejected",
				"serial", c.serial,
				"failures", n,
				"error", err,
			)
		}
	}
}

// WriteFailures returns how many batches InfluxDB rejected so far.
func (c *Client) WriteFailures() uint64 {
	return c.failures.Load()
}

// Close writes out buffered points and releases the client. Rejections
// from that final flush are counted before Close returns. It is safe to
// call more than once and on a nil Client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	c.writeAPI.Flush()
	c.client.Close()
	<-c.drained
	return nil
}

// HealthCheck pings InfluxDB.
//
// Returns:
//   - error: ErrClosed after Close, otherwise nil or an error wrapping
//     ErrUnreachable or ErrUnhealthy
func (c *Client) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	checkCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return ping(checkCtx, c.client)
}

// enqueue hands one point to the batch writer unless the client is closed.
func (c *Client) enqueue(point *write.Point) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	c.writeAPI.WritePoint(point)
	return true
}
