package statistics

import (
	"strings"
	"testing"
)

func TestBytesSaved(t *testing.T) {
	tests := []struct {
		name       string
		original   int64
		compressed int64
		want       int64
	}{
		{"positive savings", 500000, 350000, 150000},
		{"no savings", 1000, 1000, 0},
		{"output grew", 100, 250, -150},
		{"nothing processed", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStatistics()
			s.AddOriginalBytes(tt.original)
			s.AddCompressedBytes(tt.compressed)
			if got := s.BytesSaved(); got != tt.want {
				t.Errorf("BytesSaved() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"bytes", 512, "512 B"},
		{"kilobytes", 2048, "2.0 KB"},
		{"megabytes", 5 * 1024 * 1024, "5.0 MB"},
		{"negative", -2048, "-2.0 KB"},
		{"zero", 0, "0 B"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatBytes(tt.bytes); got != tt.want {
				t.Errorf("FormatBytes(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestCounters(t *testing.T) {
	s := NewStatistics()
	s.IncrementFilesFound()
	s.IncrementFilesFound()
	s.IncrementFilesProcessed()
	s.IncrementFilesCompressed()
	s.IncrementFilesFailed()
	s.IncrementFilesSkipped()

	if s.FilesFound != 2 {
		t.Errorf("FilesFound = %d, want 2", s.FilesFound)
	}
	if s.GetFilesProcessed() != 1 {
		t.Errorf("GetFilesProcessed() = %d, want 1", s.GetFilesProcessed())
	}
	if s.GetFilesCompressed() != 1 {
		t.Errorf("GetFilesCompressed() = %d, want 1", s.GetFilesCompressed())
	}
	if s.GetFilesFailed() != 1 {
		t.Errorf("GetFilesFailed() = %d, want 1", s.GetFilesFailed())
	}
}

func TestGetErrorSummary(t *testing.T) {
	s := NewStatistics()
	if got := s.GetErrorSummary(); got != "No errors occurred during processing" {
		t.Errorf("GetErrorSummary() = %q", got)
	}

	s.AddError("a.gif", "compress", "gifsicle failed")
	got := s.GetErrorSummary()
	if !strings.Contains(got, "a.gif") || !strings.Contains(got, "gifsicle failed") {
		t.Errorf("GetErrorSummary() missing error detail: %q", got)
	}
	if !strings.Contains(got, "Errors (1 total)") {
		t.Errorf("GetErrorSummary() missing count: %q", got)
	}
}

func TestFinalize(t *testing.T) {
	s := NewStatistics()
	s.IncrementFilesProcessed()
	s.Finalize()
	if s.Duration <= 0 {
		t.Errorf("Duration = %v, want > 0", s.Duration)
	}
	if s.EndTime.Before(s.StartTime) {
		t.Errorf("EndTime before StartTime")
	}
}
