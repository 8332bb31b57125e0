package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/gray-logic-rrd/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Stats are the write counters since Connect.
type Stats struct {
	SeriesPoints  uint64 `json:"series_points"`
	SamplePoints  uint64 `json:"sample_points"`
	WriteFailures uint64 `json:"write_failures"`
}

// Client is the InfluxDB destination for round-robin data.
//
// Exported series use the blocking write API so the export watermark only
// moves once InfluxDB has accepted the rows. Live samples are batched.
// All methods are safe for concurrent use.
type Client struct {
	client        influxdb2.Client
	writeAPI      api.WriteAPI
	writeBlocking api.WriteAPIBlocking
	cfg           config.InfluxDBConfig

	mu        sync.RWMutex
	connected bool
	onError   func(err error)

	seriesPoints  atomic.Uint64
	samplePoints  atomic.Uint64
	writeFailures atomic.Uint64
}

// clientOptions applies batch defaults to the configured values.
func clientOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batchSize := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batchSize = uint(cfg.BatchSize)
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}
	return influxdb2.DefaultOptions().
		SetBatchSize(batchSize).
		SetFlushInterval(uint(flush.Milliseconds())). // #nosec G115 -- positive by construction
		SetHTTPRequestTimeout(uint(connectTimeout.Seconds()))
}

// Connect creates the client and pings the server.
//
// Returns:
//   - *Client: ready for WriteSeries and WriteSample
//   - error: ErrDisabled when cfg.Enabled is false, ErrConnectionFailed when
//     the server does not answer the ping
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		client:        client,
		writeAPI:      client.WriteAPI(cfg.Org, cfg.Bucket),
		writeBlocking: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		cfg:           cfg,
		connected:     true,
	}
	go c.forwardWriteErrors(c.writeAPI.Errors())
	return c, nil
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("server not healthy")
	}
	return nil
}

// forwardWriteErrors hands batched write failures to the OnError callback
// until the write API is closed.
func (c *Client) forwardWriteErrors(errs <-chan error) {
	for err := range errs {
		c.writeFailures.Add(1)
		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()
		if callback != nil {
			callback(err)
		}
	}
}

// Close flushes batched samples and closes the client. Safe to call twice.
func (c *Client) Close() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = false
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.client.Close()
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	checkCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(checkCtx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// IsConnected reports whether Close has not been called yet.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetOnError registers the callback for batched write failures.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	c.onError = callback
	c.mu.Unlock()
}

// Flush blocks until batched samples are sent. It is a no-op after Close.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

// Stats returns a snapshot of the write counters.
func (c *Client) Stats() Stats {
	return Stats{
		SeriesPoints:  c.seriesPoints.Load(),
		SamplePoints:  c.samplePoints.Load(),
		WriteFailures: c.writeFailures.Load(),
	}
}
