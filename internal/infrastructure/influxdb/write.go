package influxdb

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by rrdcore.
const (
	// MeasurementSeries holds consolidated rows exported from a database.
	MeasurementSeries = "rrd_series"

	// MeasurementSample holds raw values as they are applied.
	MeasurementSample = "rrd_sample"
)

// Sample is one timestamped row of data source values.
type Sample struct {
	Timestamp int64
	Values    map[string]float64
}

// SeriesPoints converts consolidated rows into points tagged with the
// database name and consolidation function. Unknown (NaN or infinite)
// values are dropped; a row with no remaining values yields no point.
func SeriesPoints(name, cf string, samples []Sample) []*write.Point {
	points := make([]*write.Point, 0, len(samples))
	tags := map[string]string{"rrd": name, "cf": cf}
	for _, s := range samples {
		fields := knownFields(s.Values)
		if len(fields) == 0 {
			continue
		}
		points = append(points, write.NewPoint(MeasurementSeries, tags, fields, time.Unix(s.Timestamp, 0)))
	}
	return points
}

// WriteSeries writes consolidated rows and blocks until InfluxDB accepts them.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - name: Managed database name, stored as the "rrd" tag
//   - cf: Consolidation function, stored as the "cf" tag
//   - samples: Rows to write
//
// Returns:
//   - error: ErrNotConnected, or ErrWriteFailed wrapping the server error
func (c *Client) WriteSeries(ctx context.Context, name, cf string, samples []Sample) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	points := SeriesPoints(name, cf, samples)
	if len(points) == 0 {
		return nil
	}
	if err := c.writeBlocking.WritePoint(ctx, points...); err != nil {
		c.writeFailures.Add(1)
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, name, err)
	}
	c.seriesPoints.Add(uint64(len(points)))
	return nil
}

// WriteSample queues one applied update for batched delivery.
//
// The write is non-blocking; failures surface through SetOnError.
// timestamp 0 means now.
func (c *Client) WriteSample(name string, timestamp int64, values map[string]float64) {
	if !c.IsConnected() {
		return
	}
	fields := knownFields(values)
	if len(fields) == 0 {
		return
	}
	ts := time.Now()
	if timestamp > 0 {
		ts = time.Unix(timestamp, 0)
	}
	c.writeAPI.WritePoint(write.NewPoint(MeasurementSample, map[string]string{"rrd": name}, fields, ts))
	c.samplePoints.Add(1)
}

// knownFields keeps finite values; line protocol cannot carry NaN.
func knownFields(values map[string]float64) map[string]any {
	fields := make(map[string]any, len(values))
	for k, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		fields[k] = v
	}
	return fields
}
