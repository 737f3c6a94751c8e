package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ds124wfegd/imgsqueeze/internal/entity"
	"github.com/ds124wfegd/imgsqueeze/internal/pkg/archive"
	"github.com/ds124wfegd/imgsqueeze/internal/pkg/storage"
	"github.com/spf13/cobra"
)

var errAllFailed = errors.New("no file was compressed")

func newCompressCmd(opts *rootOptions) *cobra.Command {
	var (
		flags   requestFlags
		outDir  string
		zipPath string
	)

	cmd := &cobra.Command{
		Use:   "compress <files...>",
		Short: "Compress images into a directory or a zip archive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			req, err := flags.request(cfg)
			if err != nil {
				return err
			}
			svc, err := newService(cfg)
			if err != nil {
				return err
			}

			files := make([]entity.UploadedFile, 0, len(args))
			for _, path := range args {
				f, err := diskFile(path)
				if err != nil {
					return err
				}
				files = append(files, f)
			}

			var sink archive.Sink
			if zipPath != "" {
				out, err := os.Create(zipPath)
				if err != nil {
					return err
				}
				defer out.Close()
				sink = archive.NewZipSink(out)
			} else {
				sink = archive.NewDirSink(storage.NewFileStorage(outDir))
			}

			res, procErr := svc.Process(cmd.Context(), files, req, sink)
			if res == nil {
				return procErr
			}
			if err := sink.Close(); err != nil {
				return fmt.Errorf("close output: %w", err)
			}

			w := cmd.OutOrStdout()
			for _, o := range res.Outcomes {
				if o.Succeeded() {
					printf(w, "  ok    %-30s -> %-34s %10s  %5.1f%%\n",
						o.OriginalName, o.Success.OutputName, formatBytes(o.Success.CompressedSize), o.Ratio())
					continue
				}
				printf(w, "  fail  %-30s %s: %s\n", o.OriginalName, o.Failure.Kind, o.Failure.Message)
			}
			printf(w, "\n  %d compressed, %d failed, %s -> %s (%.1f%% saved) in %s\n",
				res.SuccessCount, res.FailureCount,
				formatBytes(res.TotalOriginalBytes), formatBytes(res.TotalCompressedBytes),
				res.Ratio(), res.Duration.Round(time.Millisecond))

			if procErr != nil {
				return procErr
			}
			if res.SuccessCount == 0 {
				return errAllFailed
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&outDir, "out", "o", "compressed", "output directory")
	cmd.Flags().StringVar(&zipPath, "zip", "", "write a zip archive instead of a directory")
	return cmd
}

func diskFile(path string) (entity.UploadedFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return entity.UploadedFile{}, err
	}
	if info.IsDir() {
		return entity.UploadedFile{}, fmt.Errorf("%s is a directory", path)
	}
	return entity.UploadedFile{
		Name: filepath.Base(path),
		Size: info.Size(),
		Open: func() ([]byte, error) { return os.ReadFile(path) },
	}, nil
}
