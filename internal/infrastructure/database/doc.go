// Package database opens the SQLite catalog and applies its migrations.
//
// The pool holds a single connection: SQLite allows one writer, and an
// in-memory database (MemoryPath, used by tests) is private to its
// connection. On disk the file is created 0600 and WAL mode is enabled
// when configured.
//
//	import _ "github.com/nerrad567/gray-logic-rrd/migrations"
//
//	db, err := database.Open(database.FromConfig(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	err = db.Migrate(ctx)
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional .down.sql partner. New columns must be nullable or carry a default.
package database
