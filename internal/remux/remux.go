// Package remux shells out to ffmpeg to repair a video container whose
// duration metadata is missing or implausible. It never re-encodes:
// -c copy keeps the transform lossless and fast.
package remux

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// Repairer remuxes a video container in place (via a temp file swap).
type Repairer interface {
	Repair(ctx context.Context, path string) error
}

// FFmpegRepairer shells out to the system ffmpeg binary.
type FFmpegRepairer struct {
	// Binary overrides the ffmpeg executable name, for tests.
	Binary string
}

// NewFFmpegRepairer returns a Repairer using "ffmpeg" on $PATH.
func NewFFmpegRepairer() *FFmpegRepairer {
	return &FFmpegRepairer{Binary: "ffmpeg"}
}

// Repair remuxes path into a sibling temp file with corrected duration
// metadata (-fflags +genpts), then swaps it over the original.
func (r *FFmpegRepairer) Repair(ctx context.Context, path string) error {
	bin := r.Binary
	if bin == "" {
		bin = "ffmpeg"
	}

	tmp := path + ".viddup-remux.tmp"
	cmd := exec.CommandContext(ctx, bin,
		"-y", "-fflags", "+genpts", "-i", path,
		"-map", "0", "-c", "copy", tmp)
	out, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("remux %s: %w: %s", path, err, out)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("remux %s: swap: %w", path, err)
	}
	return nil
}
