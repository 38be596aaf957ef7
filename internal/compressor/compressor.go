package compressor

import (
	"context"
	"errors"
	"time"
)

// ErrGifsicleNotFound is returned by Check when the gifsicle binary is not
// resolvable on PATH. The whole run aborts on this error; per-file errors
// never do.
var ErrGifsicleNotFound = errors.New("gifsicle not found on PATH")

// Params defines the gifsicle parameters for the compression process.
type Params struct {
	OptimizeLevel int  // -O<n>, 1-3
	Lossy         int  // --lossy=<n>, acceptable quality loss
	Colors        int  // --colors <n>, palette cap
	SkipLarger    bool // keep the original when the output is not smaller
}

// DefaultParams returns the standard compression parameters.
func DefaultParams() Params {
	return Params{
		OptimizeLevel: 3,
		Lossy:         80,
		Colors:        256,
	}
}

// Result describes the result of compressing a single file.
type Result struct {
	InputPath    string
	OutputPath   string
	OriginalSize int64
	NewSize      int64
	SavedBytes   int64
	PercentSaved int64
	Message      string
	Success      bool
	Skipped      bool // original kept because the output was not smaller
	StartedAt    time.Time
	FinishedAt   time.Time
	Error        error
}

// Compressor defines the interface for GIF compression.
type Compressor interface {
	// Check verifies the external tool is available. It must be called
	// before any file is processed.
	Check() error

	// Version returns the tool's version line for diagnostics.
	Version() (string, error)

	// CompressFile compresses inputPath into outputPath via a sibling
	// temporary file. The original is only replaced after the compressed
	// output is fully written.
	CompressFile(ctx context.Context, inputPath, outputPath string) Result
}

// PercentSaved computes the integer savings percentage with truncation
// toward zero. Defined as 0 when the original size is 0.
func PercentSaved(originalSize, newSize int64) int64 {
	if originalSize <= 0 {
		return 0
	}
	return (originalSize - newSize) * 100 / originalSize
}
