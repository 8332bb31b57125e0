// Package ingest applies sample updates to managed databases.
//
// Updates arrive from two places: MQTT messages on rrdcore/update/{name}
// and API calls. Both go through Service.Apply, which writes the sample,
// records it in the catalog, and fans the result out to MQTT
// (rrdcore/updated/{name} or rrdcore/error/{name}), WebSocket clients
// (rrd.updated) and InfluxDB.
//
// Writes to one file are serialized by that file's queue in the rrdtool
// package, so concurrent messages for the same name apply in arrival order.
//
// # Message format
//
//	{"timestamp": 1405942000, "values": {"watts": 12.5, "volts": null}, "skip_past_updates": true}
//
// timestamp is optional (now). A null value is written as unknown.
package ingest
