// Package runner orchestrates file discovery, per-file compression, and
// batch accounting.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gif-squeeze-go/internal/compressor"
	"gif-squeeze-go/internal/config"
	"gif-squeeze-go/internal/history"
	"gif-squeeze-go/internal/logger"
	"gif-squeeze-go/internal/statistics"

	"github.com/sirupsen/logrus"
)

// gifPattern is the discovery glob, matched case-sensitively and
// non-recursively against the source directory.
const gifPattern = "*.gif"

// separator is printed after every processed file, regardless of outcome.
const separator = "----------------------------------------"

// BatchRunner compresses all matching files in the source directory.
type BatchRunner struct {
	config     *config.Config
	logger     *logrus.Logger
	stats      *statistics.Statistics
	compressor compressor.Compressor
	history    *history.Store
	out        io.Writer
}

// FileInfo contains information about a discovered file.
type FileInfo struct {
	Path       string
	Size       int64
	ModTime    time.Time
	ChangeTime time.Time
}

// NewBatchRunner returns a BatchRunner writing progress to stdout.
func NewBatchRunner(
	cfg *config.Config,
	log *logrus.Logger,
	stats *statistics.Statistics,
	comp compressor.Compressor,
) *BatchRunner {
	return NewBatchRunnerWithOutput(cfg, log, stats, comp, os.Stdout)
}

// NewBatchRunnerWithOutput allows redirecting progress output (for the web
// interface and for tests).
func NewBatchRunnerWithOutput(
	cfg *config.Config,
	log *logrus.Logger,
	stats *statistics.Statistics,
	comp compressor.Compressor,
	out io.Writer,
) *BatchRunner {
	return &BatchRunner{
		config:     cfg,
		logger:     log,
		stats:      stats,
		compressor: comp,
		out:        out,
	}
}

// SetHistory attaches an optional history store; every processed file is
// recorded to it.
func (br *BatchRunner) SetHistory(store *history.Store) {
	br.history = store
}

// CompressFiles runs the batch: discover, then process each file
// sequentially in discovery order. Per-file failures are logged and counted
// but never abort the run; only discovery errors are returned.
func (br *BatchRunner) CompressFiles(ctx context.Context) error {
	br.logger.Info("Starting batch compression")

	files, err := br.discoverFiles()
	if err != nil {
		return fmt.Errorf("failed to discover files: %w", err)
	}

	if len(files) == 0 {
		fmt.Fprintf(br.out, "No GIF files found in %s\n", br.config.SourceDirectory)
		br.logger.Info("No GIF files found, nothing to do")
		return nil
	}

	threshold, err := br.config.AfterThreshold()
	if err != nil {
		return fmt.Errorf("invalid time filter: %w", err)
	}

	if max := br.config.Security.MaxFilesPerRun; max > 0 && len(files) > max {
		br.logger.Warnf("Limiting run to %d of %d files", max, len(files))
		files = files[:max]
	}

	for range files {
		br.stats.IncrementFilesFound()
	}
	fmt.Fprintf(br.out, "Found %d GIF files in %s\n", len(files), br.config.SourceDirectory)

	if br.config.Security.DryRun {
		fmt.Fprintln(br.out, "Running in dry-run mode, no files will be modified")
	}
	fmt.Fprintln(br.out, separator)

	for _, file := range files {
		if ctx.Err() != nil {
			br.logger.Warn("Interrupted, stopping batch")
			break
		}

		if !threshold.IsZero() && br.fileTime(file).Before(threshold) {
			br.logger.Debugf("Skipping %s (%s before threshold)", file.Path, br.config.Filter.TimeField)
			br.stats.IncrementFilesSkipped()
			continue
		}

		br.processFile(ctx, file)
	}

	br.stats.Finalize()
	return nil
}

// discoverFiles lists files matching *.gif directly under the source
// directory. filepath.Glob returns lexically sorted matches, which fixes the
// processing order.
func (br *BatchRunner) discoverFiles() ([]FileInfo, error) {
	matches, err := filepath.Glob(filepath.Join(br.config.SourceDirectory, gifPattern))
	if err != nil {
		return nil, err
	}

	var files []FileInfo
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			br.logger.Warnf("Cannot stat %s: %v", path, err)
			continue
		}
		if info.IsDir() {
			continue
		}
		files = append(files, FileInfo{
			Path:       path,
			Size:       info.Size(),
			ModTime:    info.ModTime(),
			ChangeTime: changeTime(info),
		})
	}
	return files, nil
}

// processFile handles one file: compress, replace, account. A separator is
// always printed afterwards.
func (br *BatchRunner) processFile(ctx context.Context, file FileInfo) {
	defer fmt.Fprintln(br.out, separator)

	name := filepath.Base(file.Path)
	br.stats.IncrementFilesProcessed()

	fmt.Fprintf(br.out, "Compressing %s\n", name)
	fmt.Fprintf(br.out, "  original size: %d bytes (%s)\n", file.Size, statistics.FormatBytes(file.Size))

	if br.config.Security.DryRun {
		fmt.Fprintln(br.out, "  [dry-run] would run gifsicle, no changes made")
		br.stats.IncrementFilesSkipped()
		return
	}

	outputPath := file.Path
	if !br.config.IsInPlace() {
		outputPath = filepath.Join(br.config.GetTargetDirectory(), name)
	}

	res := br.compressor.CompressFile(ctx, file.Path, outputPath)

	if res.Error != nil {
		logger.WithFileOperation(br.logger, file.Path, "compress").Errorf("%v", res.Error)
		br.stats.AddError(file.Path, "compress", res.Error.Error())
		br.stats.IncrementFilesFailed()
		fmt.Fprintf(br.out, "  failed, original left unchanged (see %s)\n", br.config.Logging.FilePath)
		br.record(history.Record{
			FilePath:     file.Path,
			OriginalSize: res.OriginalSize,
			Status:       history.StatusFailed,
			Error:        res.Error.Error(),
		})
		return
	}

	br.stats.AddOriginalBytes(res.OriginalSize)
	br.stats.AddCompressedBytes(res.NewSize)

	if res.Skipped {
		fmt.Fprintf(br.out, "  %s\n", res.Message)
		br.stats.IncrementFilesSkipped()
		br.record(history.Record{
			FilePath:       file.Path,
			OriginalSize:   res.OriginalSize,
			CompressedSize: res.NewSize,
			Status:         history.StatusSkipped,
		})
		return
	}

	br.stats.IncrementFilesCompressed()
	fmt.Fprintf(br.out, "  new size: %d bytes (%s)\n", res.NewSize, statistics.FormatBytes(res.NewSize))
	fmt.Fprintf(br.out, "  saved: %d bytes (%d%%)\n", res.SavedBytes, res.PercentSaved)
	br.record(history.Record{
		FilePath:       file.Path,
		OriginalSize:   res.OriginalSize,
		CompressedSize: res.NewSize,
		SavedBytes:     res.SavedBytes,
		PercentSaved:   res.PercentSaved,
		Status:         history.StatusCompressed,
	})
}

// fileTime returns the timestamp the after filter compares against.
func (br *BatchRunner) fileTime(file FileInfo) time.Time {
	if br.config.Filter.TimeField == "ctime" {
		return file.ChangeTime
	}
	return file.ModTime
}

func (br *BatchRunner) record(rec history.Record) {
	if br.history == nil {
		return
	}
	if err := br.history.Add(&rec); err != nil {
		br.logger.Warnf("Failed to record history for %s: %v", rec.FilePath, err)
	}
}
