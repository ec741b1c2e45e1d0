// Package slither shells out to the external slither analyzer. The tool is
// treated as an opaque producer of text; a missing binary or a failed run is
// a normal outcome, not an error.
package slither

import (
	"context"
	"os/exec"

	"argus/internal/logger"
)

// Available reports whether the slither binary is on PATH.
func Available() bool {
	_, err := exec.LookPath("slither")
	return err == nil
}

// Run invokes slither against a materialized source directory and returns
// its combined output. Slither exits non-zero when it finds issues, so the
// exit status is ignored whenever any output was produced.
func Run(ctx context.Context, sourceDir string) (string, bool) {
	if !Available() {
		logger.InfoFileOnly("slither not installed, skipping static analysis")
		return "", false
	}

	cmd := exec.CommandContext(ctx, "slither", sourceDir)
	out, err := cmd.CombinedOutput()
	if len(out) == 0 {
		if err != nil {
			logger.Warn("slither produced no output: %v", err)
		}
		return "", false
	}
	return string(out), true
}
