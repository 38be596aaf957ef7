package compressor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const gifsicleBinary = "gifsicle"

// TempSuffix is appended to the input path to form the temporary output
// path the tool writes to before the atomic rename.
const TempSuffix = ".tmp"

// Gifsicle compresses GIF files by invoking the gifsicle binary.
type Gifsicle struct {
	params Params
	logger *logrus.Logger
}

// NewGifsicle returns a Gifsicle compressor with the given parameters.
func NewGifsicle(params Params, logger *logrus.Logger) *Gifsicle {
	return &Gifsicle{
		params: params,
		logger: logger,
	}
}

// Check verifies gifsicle is resolvable on PATH.
func (g *Gifsicle) Check() error {
	if _, err := exec.LookPath(gifsicleBinary); err != nil {
		return ErrGifsicleNotFound
	}
	return nil
}

// Version returns the first line of `gifsicle --version`.
func (g *Gifsicle) Version() (string, error) {
	out, err := exec.Command(gifsicleBinary, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("gifsicle --version failed: %w", err)
	}
	line := strings.TrimSpace(string(out))
	if idx := strings.Index(line, "\n"); idx > 0 {
		line = line[:idx]
	}
	return line, nil
}

// buildArgs assembles the gifsicle argument list for one file.
func (g *Gifsicle) buildArgs(inputPath, tempPath string) []string {
	return []string{
		fmt.Sprintf("-O%d", g.params.OptimizeLevel),
		fmt.Sprintf("--lossy=%d", g.params.Lossy),
		"--colors", strconv.Itoa(g.params.Colors),
		inputPath,
		"-o", tempPath,
	}
}

// CompressFile compresses a single file. The tool writes to a sibling
// temporary path which is then renamed over outputPath. On any failure the
// temporary file is removed and the original is left untouched.
func (g *Gifsicle) CompressFile(ctx context.Context, inputPath, outputPath string) Result {
	res := Result{
		InputPath:  inputPath,
		OutputPath: outputPath,
		StartedAt:  time.Now(),
	}

	info, err := os.Stat(inputPath)
	if err != nil {
		res.Error = fmt.Errorf("stat input: %w", err)
		res.Message = res.Error.Error()
		res.FinishedAt = time.Now()
		return res
	}
	res.OriginalSize = info.Size()

	tempPath := inputPath + TempSuffix
	g.logger.Debugf("Running %s %s", gifsicleBinary, strings.Join(g.buildArgs(inputPath, tempPath), " "))

	cmd := exec.CommandContext(ctx, gifsicleBinary, g.buildArgs(inputPath, tempPath)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		// gifsicle does not guarantee the temp file is absent on failure.
		removeIfExists(tempPath)
		res.Error = fmt.Errorf("gifsicle failed: %w, output: %s", err, strings.TrimSpace(string(output)))
		res.Message = res.Error.Error()
		res.FinishedAt = time.Now()
		return res
	}

	tempInfo, err := os.Stat(tempPath)
	if err != nil {
		res.Error = fmt.Errorf("gifsicle did not create output file: %w", err)
		res.Message = res.Error.Error()
		res.FinishedAt = time.Now()
		return res
	}

	if g.params.SkipLarger && tempInfo.Size() >= res.OriginalSize {
		removeIfExists(tempPath)
		res.NewSize = res.OriginalSize
		res.Success = true
		res.Skipped = true
		res.Message = "output not smaller than original, kept original"
		res.FinishedAt = time.Now()
		return res
	}

	if err := os.Rename(tempPath, outputPath); err != nil {
		removeIfExists(tempPath)
		res.Error = fmt.Errorf("rename %s -> %s: %w", tempPath, outputPath, err)
		res.Message = res.Error.Error()
		res.FinishedAt = time.Now()
		return res
	}

	newInfo, err := os.Stat(outputPath)
	if err != nil {
		res.Error = fmt.Errorf("stat output: %w", err)
		res.Message = res.Error.Error()
		res.FinishedAt = time.Now()
		return res
	}
	res.NewSize = newInfo.Size()
	res.SavedBytes = res.OriginalSize - res.NewSize
	res.PercentSaved = PercentSaved(res.OriginalSize, res.NewSize)
	res.Success = true
	res.Message = "compressed"
	res.FinishedAt = time.Now()
	return res
}

// removeIfExists deletes path, ignoring the case where it is already gone.
func removeIfExists(path string) {
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path)
	}
}
