// Command prepare-dataset extracts a source video into a directory of
// numbered frame images named by the video's content hash, ready for use as
// colorization training input.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/tsawler/go-colorize/dataset"
)

func main() {
	var (
		source      = flag.String("source", "", "source video")
		destination = flag.String("destination", "", "destination directory")
		ffmpeg      = flag.String("ffmpeg", "ffmpeg", "ffmpeg binary")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if *source == "" || *destination == "" {
		logger.Error("both -source and -destination are required")
		flag.Usage()
		os.Exit(2)
	}

	dir, err := dataset.Extract(context.Background(), *source, *destination, dataset.WithFFmpeg(*ffmpeg))
	if err != nil {
		logger.Error("extraction failed", "source", *source, "error", err)
		os.Exit(1)
	}

	frames, err := dataset.OpenFrames(dir)
	if err != nil {
		logger.Error("no frames extracted", "dir", dir, "error", err)
		os.Exit(1)
	}
	logger.Info("dataset prepared", "dir", dir, "frames", frames.Len())
}
