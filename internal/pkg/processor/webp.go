package processor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/ds124wfegd/imgsqueeze/internal/entity"
	"github.com/sirupsen/logrus"
)

var errCwebpMissing = errors.New("cwebp not found in PATH; install with: apt install webp")

// webpEncoder shells out to cwebp so the service stays free of cgo.
type webpEncoder struct {
	once      sync.Once
	path      string
	available bool
}

func newWebPEncoder(path string) *webpEncoder {
	return &webpEncoder{path: path}
}

func (e *webpEncoder) Available() bool {
	e.once.Do(func() {
		name := e.path
		if name == "" {
			name = "cwebp"
		}
		path, err := exec.LookPath(name)
		if err != nil {
			logrus.WithField("cwebp", name).Warn("cwebp not available, webp plans will use their fallback")
			return
		}
		e.path = path
		e.available = true
	})
	return e.available
}

func (e *webpEncoder) Encode(ctx context.Context, img image.Image, params entity.WebPParams) ([]byte, error) {
	if !e.Available() {
		return nil, errCwebpMissing
	}

	src, err := os.CreateTemp("", "imgsqueeze_src_*.png")
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	srcPath := src.Name()
	defer os.Remove(srcPath)

	// fast lossless intermediate; cwebp does the real work
	enc := &png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(src, img); err != nil {
		src.Close()
		return nil, fmt.Errorf("encode temp png: %w", err)
	}
	if err := src.Close(); err != nil {
		return nil, fmt.Errorf("close temp: %w", err)
	}

	dst, err := os.CreateTemp("", "imgsqueeze_dst_*.webp")
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	dstPath := dst.Name()
	dst.Close()
	defer os.Remove(dstPath)

	cmd := exec.CommandContext(ctx, e.path, webpArgs(params, srcPath, dstPath)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("cwebp: %w: %s", err, string(out))
	}

	return os.ReadFile(dstPath)
}

func webpArgs(params entity.WebPParams, src, dst string) []string {
	args := []string{
		"-q", strconv.Itoa(entity.ClampQuality(params.Quality)),
		"-m", strconv.Itoa(params.Effort),
	}
	if params.AlphaQuality > 0 {
		args = append(args, "-alpha_q", strconv.Itoa(entity.ClampQuality(params.AlphaQuality)))
	}
	return append(args, "-mt", "-quiet", "-metadata", "none", src, "-o", dst)
}
