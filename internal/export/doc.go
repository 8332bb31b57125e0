// Package export mirrors consolidated rows from managed databases into
// InfluxDB.
//
// Each catalog entry carries an export watermark (ExportedUntil). A pass
// fetches the rows newer than the watermark, writes them with a blocking
// InfluxDB write and only then advances the watermark, so a failed write is
// retried on the next pass. Files are exported concurrently up to a limit;
// one failing file does not stop the others.
package export
