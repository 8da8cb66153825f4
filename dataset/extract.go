// Package dataset prepares and consumes training frames for the
// colorization graphs: it extracts a source video into a directory of
// numbered frame images keyed by the video's content hash, and iterates the
// resulting frames as training pairs.
package dataset

import (
	"context"
	"encoding/hex"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// framePattern is the ffmpeg output template for sequentially numbered
// frames.
const framePattern = "%06d.png"

// HashFile computes the 160-bit BLAKE2b content hash of a file, hex
// encoded.
func HashFile(path string) (string, error) {
	digest, err := blake2b.New(20, nil)
	if err != nil {
		return "", errors.Wrap(err, "creating digest")
	}

	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "opening source file")
	}
	defer f.Close()

	if _, err := io.Copy(digest, f); err != nil {
		return "", errors.Wrapf(err, "hashing %s", path)
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}

// ExtractOption customizes frame extraction.
type ExtractOption func(*extractConfig)

type extractConfig struct {
	ffmpeg string
}

// WithFFmpeg overrides the ffmpeg binary used for extraction.
func WithFFmpeg(path string) ExtractOption {
	return func(c *extractConfig) {
		c.ffmpeg = path
	}
}

// Extract hashes the source video, creates destination/<hash>, and
// populates it with sequentially numbered frame images. The hash directory
// must not already exist: re-running on identical input fails by design as
// a guard against accidental overwrite. Returns the created directory.
func Extract(ctx context.Context, source, destination string, opts ...ExtractOption) (string, error) {
	cfg := extractConfig{ffmpeg: "ffmpeg"}
	for _, opt := range opts {
		opt(&cfg)
	}

	hash, err := HashFile(source)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(destination, hash)
	if err := os.Mkdir(dir, 0755); err != nil {
		return "", errors.Wrapf(err, "destination for %s", source)
	}

	cmd := exec.CommandContext(ctx, cfg.ffmpeg, "-i", source, filepath.Join(dir, framePattern))
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", errors.Wrapf(err, "extracting frames from %s: %s", source, out)
	}
	return dir, nil
}
