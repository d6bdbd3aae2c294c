package upload

import (
	"context"
	"image"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	// Register the decoders image.DecodeConfig needs for dimension sniffing.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// imageDimensions reads width/height from the file header without decoding
// the full image. Best-effort: any failure returns nils.
func imageDimensions(path string) (width, height *int) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil
	}
	defer func() { _ = f.Close() }()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, nil
	}
	w, h := cfg.Width, cfg.Height
	return &w, &h
}

// probeDurationMs shells out to ffprobe for media duration. Best-effort:
// a missing binary or unparseable output just leaves the metadata empty.
func probeDurationMs(ctx context.Context, path string) *int64 {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return nil
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || seconds < 0 {
		return nil
	}
	ms := int64(seconds * 1000)
	return &ms
}
