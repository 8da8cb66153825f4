package dataset

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Frames is a directory of sequentially numbered frame images, as produced
// by Extract.
type Frames struct {
	dir   string
	paths []string
}

// OpenFrames loads the frame listing of a directory in sequence order.
func OpenFrames(dir string) (*Frames, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.png"))
	if err != nil {
		return nil, errors.Wrapf(err, "listing frames in %s", dir)
	}
	if len(paths) == 0 {
		return nil, errors.Errorf("no frames found in %s", dir)
	}
	sort.Strings(paths)
	return &Frames{dir: dir, paths: paths}, nil
}

// Len returns the number of frames.
func (f *Frames) Len() int {
	return len(f.paths)
}

// Path returns the path of frame i.
func (f *Frames) Path(i int) string {
	return f.paths[i]
}

// FramePair is a pair of consecutive frames. Previous carries the color
// state input for temporal training, Current the target frame.
type FramePair struct {
	Previous string
	Current  string
}

// Pairs returns all consecutive frame pairs in sequence order.
func (f *Frames) Pairs() []FramePair {
	if len(f.paths) < 2 {
		return nil
	}
	pairs := make([]FramePair, 0, len(f.paths)-1)
	for i := 1; i < len(f.paths); i++ {
		pairs = append(pairs, FramePair{Previous: f.paths[i-1], Current: f.paths[i]})
	}
	return pairs
}

// DecodeAll decodes every frame concurrently, preserving sequence order.
func (f *Frames) DecodeAll(ctx context.Context) ([]image.Image, error) {
	images := make([]image.Image, len(f.paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, path := range f.paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := decodePNG(path)
			if err != nil {
				return err
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

func decodePNG(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening frame %s", path)
	}
	defer file.Close()

	img, err := png.Decode(file)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding frame %s", path)
	}
	return img, nil
}
