package processor

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/ds124wfegd/imgsqueeze/internal/entity"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/bmp"
)

// jpegEncoder hands progressive and 4:4:4 plans to cjpeg. Everything else,
// and every plan on hosts without cjpeg, goes through the stdlib encoder,
// which only writes baseline 4:2:0.
type jpegEncoder struct {
	once      sync.Once
	path      string
	available bool
}

func newJPEGEncoder(path string) *jpegEncoder {
	return &jpegEncoder{path: path}
}

func (e *jpegEncoder) Available() bool {
	e.once.Do(func() {
		name := e.path
		if name == "" {
			name = "cjpeg"
		}
		path, err := exec.LookPath(name)
		if err != nil {
			logrus.WithField("cjpeg", name).Warn("cjpeg not available, jpeg output will be baseline 4:2:0")
			return
		}
		e.path = path
		e.available = true
	})
	return e.available
}

func (e *jpegEncoder) Encode(ctx context.Context, img image.Image, params entity.JPEGParams) ([]byte, error) {
	if !needsCjpeg(params) || !e.Available() {
		return EncodeJPEG(img, params)
	}

	src, err := os.CreateTemp("", "imgsqueeze_src_*.bmp")
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	srcPath := src.Name()
	defer os.Remove(srcPath)

	if err := bmp.Encode(src, img); err != nil {
		src.Close()
		return nil, fmt.Errorf("encode temp bmp: %w", err)
	}
	if err := src.Close(); err != nil {
		return nil, fmt.Errorf("close temp: %w", err)
	}

	dst, err := os.CreateTemp("", "imgsqueeze_dst_*.jpg")
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	dstPath := dst.Name()
	dst.Close()
	defer os.Remove(dstPath)

	cmd := exec.CommandContext(ctx, e.path, cjpegArgs(params, srcPath, dstPath)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("cjpeg: %w: %s", err, string(out))
	}

	return os.ReadFile(dstPath)
}

func needsCjpeg(params entity.JPEGParams) bool {
	return params.Progressive || params.Subsampling == entity.Chroma444
}

func cjpegArgs(params entity.JPEGParams, src, dst string) []string {
	sample := "2x2"
	if params.Subsampling == entity.Chroma444 {
		sample = "1x1"
	}
	args := []string{
		"-quality", strconv.Itoa(entity.ClampQuality(params.Quality)),
		"-sample", sample,
		"-optimize",
	}
	if params.Progressive {
		args = append(args, "-progressive")
	}
	return append(args, "-outfile", dst, src)
}
