// Package probe reads container metadata from media files with ffprobe.
package probe

import (
	"context"
	"encoding/json"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/fedragon/feedme/internal/errs"
)

// Prober reports the playback duration of a media file in whole seconds.
type Prober interface {
	Duration(ctx context.Context, path string) (uint64, error)
}

// Result is the subset of ffprobe's JSON output feedme reads.
type Result struct {
	Format Format `json:"format"`
}

type Format struct {
	Filename   string `json:"filename"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	FormatName string `json:"format_name"`
}

// DurationSeconds returns the container duration, or NaN when ffprobe
// reported something that is not a number.
func (r Result) DurationSeconds() float64 {
	cleaned := strings.TrimSpace(r.Format.Duration)
	if cleaned == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return math.NaN()
	}
	return parsed
}

type FFprobe struct {
	// Binary defaults to "ffprobe" looked up on PATH.
	Binary string
}

func (p FFprobe) Duration(ctx context.Context, path string) (uint64, error) {
	binary := strings.TrimSpace(p.Binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if strings.TrimSpace(path) == "" {
		return 0, errs.New(errs.External, "ffprobe: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-show_format", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		var stderr string
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = strings.TrimSpace(string(exitErr.Stderr))
		}
		return 0, errs.Wrap(errs.External, err, "ffprobe failed on %s %s", path, stderr)
	}

	return ParseDuration(output)
}

// ParseDuration extracts the duration, truncated to whole seconds, from
// ffprobe's JSON output.
func ParseDuration(output []byte) (uint64, error) {
	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return 0, errs.Wrap(errs.External, err, "cannot parse ffprobe output")
	}

	seconds := result.DurationSeconds()
	if math.IsNaN(seconds) || seconds < 0 || math.IsInf(seconds, 0) {
		return 0, errs.New(errs.External, "ffprobe reported invalid duration %q", result.Format.Duration)
	}
	return uint64(seconds), nil
}

// Fixed always reports the same duration. It stands in for ffprobe where
// durations are known upfront.
type Fixed uint64

func (f Fixed) Duration(context.Context, string) (uint64, error) {
	return uint64(f), nil
}
