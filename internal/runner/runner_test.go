package runner

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gif-squeeze-go/internal/compressor"
	"gif-squeeze-go/internal/config"
	"gif-squeeze-go/internal/history"
	"gif-squeeze-go/internal/statistics"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestRunner(t *testing.T, cfg *config.Config, out io.Writer) (*BatchRunner, *statistics.Statistics) {
	t.Helper()
	log := testLogger()
	stats := statistics.NewStatistics()
	comp := compressor.NewGifsicle(compressor.Params{
		OptimizeLevel: cfg.Compression.OptimizeLevel,
		Lossy:         cfg.Compression.Lossy,
		Colors:        cfg.Compression.Colors,
		SkipLarger:    cfg.Compression.SkipLarger,
	}, log)
	return NewBatchRunnerWithOutput(cfg, log, stats, comp, out), stats
}

// writeStubTool installs a fake gifsicle on PATH. The script body can use
// $in and $out, extracted from the argument list.
func writeStubTool(t *testing.T, body string) {
	t.Helper()
	dir := t.TempDir()
	script := `#!/bin/sh
in=""
out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "-o" ]; then out="$a"; fi
  if [ "$a" = "-o" ]; then in="$prev"; fi
  prev="$a"
done
` + body + "\n"
	if err := os.WriteFile(filepath.Join(dir, "gifsicle"), []byte(script), 0o755); err != nil {
		t.Fatalf("write stub tool: %v", err)
	}
	// Prepend so the stub shadows any real gifsicle while the script keeps
	// access to standard utilities.
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func writeGif(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x47}, size), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDiscoverFiles(t *testing.T) {
	dir := t.TempDir()
	writeGif(t, dir, "b.gif", 10)
	writeGif(t, dir, "a.gif", 10)
	writeGif(t, dir, "c.GIF", 10)   // wrong case, must not match
	writeGif(t, dir, "notes.txt", 10)
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeGif(t, filepath.Join(dir, "sub"), "nested.gif", 10) // non-recursive
	if err := os.MkdirAll(filepath.Join(dir, "dir.gif"), 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.SourceDirectory = dir
	br, _ := newTestRunner(t, cfg, io.Discard)

	files, err := br.discoverFiles()
	if err != nil {
		t.Fatalf("discoverFiles: %v", err)
	}

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f.Path))
	}
	want := []string{"a.gif", "b.gif"}
	if len(names) != len(want) {
		t.Fatalf("discovered %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("discovered %v, want %v (lexical order)", names, want)
			break
		}
	}
}

func TestCompressFiles_EmptyDirectory(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SourceDirectory = t.TempDir()

	var out bytes.Buffer
	br, stats := newTestRunner(t, cfg, &out)

	if err := br.CompressFiles(context.Background()); err != nil {
		t.Fatalf("CompressFiles: %v", err)
	}
	if !strings.Contains(out.String(), "No GIF files found") {
		t.Errorf("missing informational message, got %q", out.String())
	}
	if stats.FilesFound != 0 || stats.GetFilesProcessed() != 0 {
		t.Errorf("stats touched for empty directory: %+v", stats)
	}
}

func TestCompressFiles_MixedOutcome(t *testing.T) {
	dir := t.TempDir()
	writeGif(t, dir, "a.gif", 500000)
	writeGif(t, dir, "b.gif", 200000)

	// a.gif compresses to 350000 bytes; b.gif fails.
	writeStubTool(t, `case "$in" in
  *b.gif) echo "gifsicle: corrupt GIF" >&2; exit 1 ;;
esac
head -c 350000 /dev/zero > "$out"`)

	cfg := config.DefaultConfig()
	cfg.SourceDirectory = dir

	var out bytes.Buffer
	br, stats := newTestRunner(t, cfg, &out)

	if err := br.CompressFiles(context.Background()); err != nil {
		t.Fatalf("CompressFiles: %v", err)
	}

	aInfo, err := os.Stat(filepath.Join(dir, "a.gif"))
	if err != nil {
		t.Fatal(err)
	}
	if aInfo.Size() != 350000 {
		t.Errorf("a.gif size = %d, want 350000", aInfo.Size())
	}

	bInfo, err := os.Stat(filepath.Join(dir, "b.gif"))
	if err != nil {
		t.Fatal(err)
	}
	if bInfo.Size() != 200000 {
		t.Errorf("b.gif size = %d, want 200000 (unchanged)", bInfo.Size())
	}

	if stats.GetFilesCompressed() != 1 {
		t.Errorf("FilesCompressed = %d, want 1", stats.GetFilesCompressed())
	}
	if stats.GetFilesFailed() != 1 {
		t.Errorf("FilesFailed = %d, want 1", stats.GetFilesFailed())
	}
	if saved := stats.BytesSaved(); saved != 150000 {
		t.Errorf("BytesSaved() = %d, want 150000", saved)
	}
	if len(stats.Errors) != 1 {
		t.Errorf("recorded %d errors, want 1", len(stats.Errors))
	}

	if got := strings.Count(out.String(), separator); got != 3 {
		t.Errorf("printed %d separators, want 3 (header + one per file)", got)
	}
	if !strings.Contains(out.String(), "saved: 150000 bytes (30%)") {
		t.Errorf("missing savings line in output:\n%s", out.String())
	}

	// No temp files may survive the run.
	for _, name := range []string{"a.gif.tmp", "b.gif.tmp"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s left behind", name)
		}
	}
}

func TestCompressFiles_DryRun(t *testing.T) {
	dir := t.TempDir()
	writeGif(t, dir, "a.gif", 1000)

	// No tool on PATH: a dry run must never invoke it.
	t.Setenv("PATH", t.TempDir())

	cfg := config.DefaultConfig()
	cfg.SourceDirectory = dir
	cfg.Security.DryRun = true

	var out bytes.Buffer
	br, stats := newTestRunner(t, cfg, &out)

	if err := br.CompressFiles(context.Background()); err != nil {
		t.Fatalf("CompressFiles: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, "a.gif"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 1000 {
		t.Errorf("dry run modified file, size = %d", info.Size())
	}
	if stats.FilesSkipped != 1 {
		t.Errorf("FilesSkipped = %d, want 1", stats.FilesSkipped)
	}
	if !strings.Contains(out.String(), "[dry-run]") {
		t.Errorf("missing dry-run marker:\n%s", out.String())
	}
}

func TestCompressFiles_AfterFilter(t *testing.T) {
	dir := t.TempDir()
	writeGif(t, dir, "old.gif", 1000)

	cfg := config.DefaultConfig()
	cfg.SourceDirectory = dir
	cfg.Filter.After = "2999-01-01" // far future, everything is older

	var out bytes.Buffer
	br, stats := newTestRunner(t, cfg, &out)

	if err := br.CompressFiles(context.Background()); err != nil {
		t.Fatalf("CompressFiles: %v", err)
	}

	if stats.FilesSkipped != 1 {
		t.Errorf("FilesSkipped = %d, want 1", stats.FilesSkipped)
	}
	if stats.GetFilesProcessed() != 0 {
		t.Errorf("FilesProcessed = %d, want 0", stats.GetFilesProcessed())
	}
	if strings.Contains(out.String(), "Compressing") {
		t.Errorf("filtered file was processed:\n%s", out.String())
	}
}

func TestCompressFiles_TargetDirectory(t *testing.T) {
	dir := t.TempDir()
	target := t.TempDir()
	writeGif(t, dir, "a.gif", 1000)

	writeStubTool(t, `printf 'GIF89a small' > "$out"`)

	cfg := config.DefaultConfig()
	cfg.SourceDirectory = dir
	cfg.TargetDirectory = &target

	br, stats := newTestRunner(t, cfg, io.Discard)
	if err := br.CompressFiles(context.Background()); err != nil {
		t.Fatalf("CompressFiles: %v", err)
	}

	// Original stays, compressed output lands in the target directory.
	orig, err := os.Stat(filepath.Join(dir, "a.gif"))
	if err != nil {
		t.Fatalf("original removed: %v", err)
	}
	if orig.Size() != 1000 {
		t.Errorf("original modified, size = %d", orig.Size())
	}
	data, err := os.ReadFile(filepath.Join(target, "a.gif"))
	if err != nil {
		t.Fatalf("target output missing: %v", err)
	}
	if string(data) != "GIF89a small" {
		t.Errorf("target output = %q", data)
	}
	if stats.GetFilesCompressed() != 1 {
		t.Errorf("FilesCompressed = %d, want 1", stats.GetFilesCompressed())
	}
}

func TestCompressFiles_RecordsHistory(t *testing.T) {
	dir := t.TempDir()
	writeGif(t, dir, "a.gif", 1000)
	writeGif(t, dir, "b.gif", 1000)

	writeStubTool(t, `case "$in" in
  *b.gif) exit 1 ;;
esac
printf 'GIF89a small' > "$out"`)

	cfg := config.DefaultConfig()
	cfg.SourceDirectory = dir

	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	defer store.Close()

	br, _ := newTestRunner(t, cfg, io.Discard)
	br.SetHistory(store)

	if err := br.CompressFiles(context.Background()); err != nil {
		t.Fatalf("CompressFiles: %v", err)
	}

	records, err := store.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("recorded %d history rows, want 2", len(records))
	}
	byStatus := map[string]int{}
	for _, r := range records {
		byStatus[r.Status]++
	}
	if byStatus[history.StatusCompressed] != 1 || byStatus[history.StatusFailed] != 1 {
		t.Errorf("history statuses = %v", byStatus)
	}
}
