// Package catalog records the round-robin database files rrdcore manages.
//
// The catalog is a SQLite mirror of each file's shape (step, data sources,
// archives) plus the bookkeeping the service needs between restarts: the
// last applied update and how far the file has been exported to InfluxDB.
// Every applied update is also kept as an audit row.
//
// The rrd file on disk stays authoritative. Entries are rebuilt from
// `rrdtool info` with EntryFromInfo and stored with Upsert.
//
// # Usage
//
//	repo := catalog.NewSQLiteRepository(db.DB)
//	info, _ := database.Info(ctx)
//	entry := catalog.EntryFromInfo("power", database.Filename(), info)
//	if err := repo.Upsert(ctx, entry); err != nil {
//	    return err
//	}
package catalog
