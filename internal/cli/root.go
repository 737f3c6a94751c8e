// Package cli implements imgctl, the local front end to the compression
// pipeline.
package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/ds124wfegd/imgsqueeze/config"
	"github.com/ds124wfegd/imgsqueeze/internal/entity"
	"github.com/ds124wfegd/imgsqueeze/internal/pkg/planner"
	"github.com/ds124wfegd/imgsqueeze/internal/pkg/processor"
	"github.com/ds124wfegd/imgsqueeze/internal/service"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

type rootOptions struct {
	configFile string
	verbose    bool
}

// requestFlags are shared by every command that plans or compresses.
type requestFlags struct {
	quality int
	mode    string
	format  string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.quality, "quality", "q", 0, "quality 1-100 (default from config)")
	cmd.Flags().StringVarP(&f.mode, "mode", "m", "lossy", "compression mode: lossy, lossless or custom")
	cmd.Flags().StringVarP(&f.format, "format", "f", "", "force output format: jpeg, png or webp")
}

func (f *requestFlags) request(cfg *config.Config) (entity.CompressionRequest, error) {
	req := entity.CompressionRequest{
		Quality:     cfg.Planner.DefaultQuality,
		MaxFileSize: cfg.Limits.MaxFileSize,
		MaxFiles:    cfg.Limits.MaxFiles,
	}
	if f.quality != 0 {
		req.Quality = f.quality
	}

	mode, err := entity.ParseMode(f.mode)
	if err != nil {
		return req, err
	}
	req.Mode = mode

	if f.format != "" {
		format := entity.ParseFormat(f.format)
		if format != entity.FormatAuto && !format.Encodable() {
			return req, fmt.Errorf("%w: %q", entity.ErrInvalidFormat, f.format)
		}
		req.ExplicitFormat = format
	}
	return req.Normalize(), nil
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "imgctl",
		Short: "Plan and run image compression locally",
		Long: `imgctl runs the same planner and batch pipeline as the HTTP service
against files on disk. Results go to a directory or a zip archive.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			logrus.SetOutput(os.Stderr)
			logrus.SetLevel(logrus.WarnLevel)
			if opts.verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}

	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (default ./config/config.yaml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	root.SetVersionTemplate(fmt.Sprintf(
		"imgctl %s (%s/%s, %s)\n",
		version, runtime.GOOS, runtime.GOARCH, runtime.Version(),
	))

	root.AddCommand(newPlanCmd(opts), newCompressCmd(opts))
	return root
}

func Execute() error {
	return NewRootCmd().Execute()
}

func loadConfig(opts *rootOptions) (*config.Config, error) {
	v, err := config.LoadConfigFrom(opts.configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return config.ParseConfig(v)
}

func newService(cfg *config.Config) (service.CompressService, error) {
	tunables, err := cfg.Tunables()
	if err != nil {
		return nil, err
	}
	imgProcessor := processor.NewImageProcessor(processor.Options{
		CwebpPath: cfg.Processor.CwebpPath,
		CjpegPath: cfg.Processor.CjpegPath,
		MaxPixels: cfg.Processor.MaxPixels,
	})
	return service.NewCompressService(planner.New(tunables), imgProcessor, nil, service.Options{
		Workers:              cfg.Limits.Workers,
		BatchTimeout:         cfg.Limits.BatchTimeout,
		KeepOriginalIfLarger: cfg.Processor.KeepOriginalIfLarger,
	}), nil
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func printf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}
