// Package process runs external command-line tools to completion.
//
// It is used to drive binaries such as rrdtool that do one job per
// invocation and report failures on stderr.
//
// Features:
//   - Each run gets its own process group, killed as a whole on cancel or timeout
//   - A stable C locale so numeric output parses the same everywhere
//   - Captured stdout/stderr with a size cap
//   - Typed exit errors carrying the tool's own diagnostic
//
// Example usage:
//
//	r := process.NewRunner(process.DefaultConfig("rrdtool", "/usr/bin/rrdtool"))
//	res, err := r.Run(ctx, "last", "random.rrd")
//	if err != nil {
//	    var exitErr *process.ExitError
//	    if errors.As(err, &exitErr) {
//	        log.Printf("rrdtool said: %s", exitErr.Message)
//	    }
//	}
package process
