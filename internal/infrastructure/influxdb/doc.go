// Package influxdb provides InfluxDB connectivity for rrdcore.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, health monitoring and two write paths:
//
//   - WriteSeries: consolidated rows exported from a round-robin database,
//     written with the blocking API so the caller can advance its watermark.
//   - WriteSample: raw values as updates are applied, batched and non-blocking.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.WriteSeries(ctx, "power", "AVERAGE", samples)
//
// # Error Handling
//
// Batched write failures are delivered to the SetOnError callback.
// Connection, health check and WriteSeries errors are returned directly.
package influxdb
