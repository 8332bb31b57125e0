package influxdb_test

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-rrd/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-rrd/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and records line protocol posted to /api/v2/write.
type fakeInflux struct {
	*httptest.Server

	mu         sync.Mutex
	writes     []string
	writeCode  int
	pingStatus int
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{writeCode: http.StatusNoContent, pingStatus: http.StatusNoContent}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeInflux) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case "/ping":
		w.WriteHeader(f.pingStatus)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body) //nolint:errcheck // Test server
		f.writes = append(f.writes, string(body))
		if f.writeCode != http.StatusNoContent {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.writeCode)
			_, _ = w.Write([]byte(`{"code":"invalid","message":"rejected"}`)) //nolint:errcheck // Test server
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeInflux) setWriteCode(code int) {
	f.mu.Lock()
	f.writeCode = code
	f.mu.Unlock()
}

func (f *fakeInflux) bodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "rrdcore-test-token",
		Org:           "rrdcore",
		Bucket:        "rrd",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func connect(t *testing.T, f *fakeInflux) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(testConfig(f.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	client := connect(t, newFakeInflux(t))
	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	if _, err := influxdb.Connect(cfg); !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	f := newFakeInflux(t)
	url := f.URL
	f.Close()

	if _, err := influxdb.Connect(testConfig(url)); !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	f := newFakeInflux(t)
	cfg := testConfig(f.URL)
	cfg.BatchSize = -5
	cfg.FlushInterval = 0

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()
}

func TestHealthCheck_AfterClose(t *testing.T) {
	client := connect(t, newFakeInflux(t))
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	// Flush after Close is a no-op.
	client.Flush()
}

func TestClose_Nil(t *testing.T) {
	client := &influxdb.Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
}

// =============================================================================
// Write Tests
// =============================================================================

func TestSeriesPoints(t *testing.T) {
	points := influxdb.SeriesPoints("power", "AVERAGE", []influxdb.Sample{
		{Timestamp: 1405942000, Values: map[string]float64{"watts": 1.5, "volts": math.NaN()}},
		{Timestamp: 1405942001, Values: map[string]float64{"watts": math.Inf(1)}},
		{Timestamp: 1405942002, Values: map[string]float64{}},
	})

	if len(points) != 1 {
		t.Fatalf("len(points) = %d, want 1", len(points))
	}
	p := points[0]
	if p.Name() != influxdb.MeasurementSeries {
		t.Errorf("Name() = %q", p.Name())
	}
	if !p.Time().Equal(time.Unix(1405942000, 0)) {
		t.Errorf("Time() = %v", p.Time())
	}
	if len(p.FieldList()) != 1 || p.FieldList()[0].Key != "watts" {
		t.Errorf("fields = %+v, want only watts", p.FieldList())
	}
	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["rrd"] != "power" || tags["cf"] != "AVERAGE" {
		t.Errorf("tags = %v", tags)
	}
}

func TestWriteSeries(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	err := client.WriteSeries(context.Background(), "power", "AVERAGE", []influxdb.Sample{
		{Timestamp: 1405942000, Values: map[string]float64{"watts": 1.5}},
		{Timestamp: 1405942001, Values: map[string]float64{"watts": math.NaN()}},
	})
	if err != nil {
		t.Fatalf("WriteSeries() error = %v", err)
	}

	bodies := f.bodies()
	if len(bodies) != 1 {
		t.Fatalf("write requests = %d, want 1", len(bodies))
	}
	want := "rrd_series,cf=AVERAGE,rrd=power watts=1.5 1405942000000000000"
	if strings.TrimSpace(bodies[0]) != want {
		t.Errorf("body = %q, want %q", bodies[0], want)
	}
}

func TestWriteSeries_NothingKnown(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	err := client.WriteSeries(context.Background(), "power", "MAX", []influxdb.Sample{
		{Timestamp: 1405942001, Values: map[string]float64{"watts": math.NaN()}},
	})
	if err != nil {
		t.Fatalf("WriteSeries() error = %v", err)
	}
	if n := len(f.bodies()); n != 0 {
		t.Errorf("write requests = %d, want 0", n)
	}
}

func TestWriteSeries_Rejected(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)
	f.setWriteCode(http.StatusBadRequest)

	err := client.WriteSeries(context.Background(), "power", "AVERAGE", []influxdb.Sample{
		{Timestamp: 1405942000, Values: map[string]float64{"watts": 1}},
	})
	if !errors.Is(err, influxdb.ErrWriteFailed) {
		t.Errorf("WriteSeries() error = %v, want ErrWriteFailed", err)
	}
}

func TestWriteSeries_NotConnected(t *testing.T) {
	client := connect(t, newFakeInflux(t))
	client.Close() //nolint:errcheck // Test

	err := client.WriteSeries(context.Background(), "power", "AVERAGE", []influxdb.Sample{
		{Timestamp: 1, Values: map[string]float64{"watts": 1}},
	})
	if !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("WriteSeries() error = %v, want ErrNotConnected", err)
	}
}

func TestWriteSample(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	client.WriteSample("power", 1405942010, map[string]float64{"watts": 2.5, "volts": math.NaN()})
	client.WriteSample("power", 0, map[string]float64{"volts": math.NaN()}) // dropped
	client.Flush()

	bodies := f.bodies()
	if len(bodies) != 1 {
		t.Fatalf("write requests = %d, want 1", len(bodies))
	}
	want := "rrd_sample,rrd=power watts=2.5 1405942010000000000"
	if strings.TrimSpace(bodies[0]) != want {
		t.Errorf("body = %q, want %q", bodies[0], want)
	}
}

func TestSetOnError(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)
	f.setWriteCode(http.StatusBadRequest)

	errs := make(chan error, 1)
	client.SetOnError(func(err error) {
		select {
		case errs <- err:
		default:
		}
	})

	client.WriteSample("power", 1405942010, map[string]float64{"watts": 1})
	client.Flush()

	select {
	case err := <-errs:
		if err == nil {
			t.Error("callback received nil error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("write error callback not invoked")
	}
}

func TestStats(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	err := client.WriteSeries(context.Background(), "power", "AVERAGE", []influxdb.Sample{
		{Timestamp: 1405942000, Values: map[string]float64{"watts": 1}},
		{Timestamp: 1405942300, Values: map[string]float64{"watts": 2}},
	})
	if err != nil {
		t.Fatalf("WriteSeries() error = %v", err)
	}
	client.WriteSample("power", 1405942010, map[string]float64{"watts": 3})
	client.Flush()

	f.setWriteCode(http.StatusBadRequest)
	_ = client.WriteSeries(context.Background(), "power", "AVERAGE", []influxdb.Sample{ //nolint:errcheck // Counted below
		{Timestamp: 1405942600, Values: map[string]float64{"watts": 4}},
	})

	got := client.Stats()
	want := influxdb.Stats{SeriesPoints: 2, SamplePoints: 1, WriteFailures: 1}
	if got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
}
