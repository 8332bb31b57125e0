// Package rrdtool drives the rrdtool command-line program.
//
// It has three layers:
//
//   - Tool builds argument lists for create, dump, fetch, info, last,
//     lastupdate and update, runs them through a CommandRunner, and parses the
//     text they print. info output goes through the infotree parser and is
//     reshaped so data sources form an ordered list.
//   - Database wraps one existing file. All of its operations go through a
//     serialqueue.Queue, so the file never sees two rrdtool processes at once.
//     The first queued task loads the file's data source names, which Update
//     uses to reject unknown names before rrdtool is invoked.
//   - Manager maps short names to files under a data directory and caches one
//     Database per file.
//
// Timestamps are Unix seconds. rrdtool treats --start as exclusive, so Create
// and Fetch subtract one from the requested start (and end, for Fetch) to make
// the requested second itself addressable.
package rrdtool
