package statistics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics contains all counters for one batch compression run.
type Statistics struct {
	FilesFound      int64
	FilesProcessed  int64
	FilesCompressed int64
	FilesSkipped    int64
	FilesFailed     int64

	BytesOriginal   int64
	BytesCompressed int64

	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	FilesPerSecond float64

	Errors []StatError

	mutex sync.RWMutex
}

// StatError represents an error that occurred while processing one file.
type StatError struct {
	FilePath  string
	Operation string
	Error     string
	Timestamp time.Time
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime: time.Now(),
		Errors:    make([]StatError, 0),
	}
}

// IncrementFilesFound increases the count of discovered files by 1.
func (s *Statistics) IncrementFilesFound() {
	atomic.AddInt64(&s.FilesFound, 1)
}

// IncrementFilesProcessed increases the count of processed files by 1.
func (s *Statistics) IncrementFilesProcessed() {
	atomic.AddInt64(&s.FilesProcessed, 1)
}

// IncrementFilesCompressed increases the count of compressed files by 1.
func (s *Statistics) IncrementFilesCompressed() {
	atomic.AddInt64(&s.FilesCompressed, 1)
}

// IncrementFilesSkipped increases the count of skipped files by 1.
func (s *Statistics) IncrementFilesSkipped() {
	atomic.AddInt64(&s.FilesSkipped, 1)
}

// IncrementFilesFailed increases the count of failed files by 1.
func (s *Statistics) IncrementFilesFailed() {
	atomic.AddInt64(&s.FilesFailed, 1)
}

// AddOriginalBytes adds the given size to the pre-compression byte total.
func (s *Statistics) AddOriginalBytes(bytes int64) {
	atomic.AddInt64(&s.BytesOriginal, bytes)
}

// AddCompressedBytes adds the given size to the post-compression byte total.
func (s *Statistics) AddCompressedBytes(bytes int64) {
	atomic.AddInt64(&s.BytesCompressed, bytes)
}

// BytesSaved returns the aggregate byte difference between originals and
// outputs. Negative means the outputs grew overall.
func (s *Statistics) BytesSaved() int64 {
	return atomic.LoadInt64(&s.BytesOriginal) - atomic.LoadInt64(&s.BytesCompressed)
}

// AddError records an error that occurred during processing.
func (s *Statistics) AddError(filePath, operation, errorMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Errors = append(s.Errors, StatError{
		FilePath:  filePath,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// Finalize calculates final statistics such as duration and files per second.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)

	processed := atomic.LoadInt64(&s.FilesProcessed)
	if s.Duration.Seconds() > 0 {
		s.FilesPerSecond = float64(processed) / s.Duration.Seconds()
	}
}

// GetSummary returns a formatted summary of the run.
func (s *Statistics) GetSummary() string {
	return fmt.Sprintf(`Compression Summary:

Files:
		Found: %d
		Processed: %d
		Compressed: %d
		Skipped: %d
		Failed: %d

Sizes:
		Original: %s
		Compressed: %s
		Saved: %s

Performance:
		Duration: %v
		Files/Second: %.2f`,
		atomic.LoadInt64(&s.FilesFound),
		atomic.LoadInt64(&s.FilesProcessed),
		atomic.LoadInt64(&s.FilesCompressed),
		atomic.LoadInt64(&s.FilesSkipped),
		atomic.LoadInt64(&s.FilesFailed),
		FormatBytes(atomic.LoadInt64(&s.BytesOriginal)),
		FormatBytes(atomic.LoadInt64(&s.BytesCompressed)),
		FormatBytes(s.BytesSaved()),
		s.Duration,
		s.FilesPerSecond)
}

// GetErrorSummary returns a summary of errors that occurred during the run.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		result += fmt.Sprintf("  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.FilePath,
			err.Error)
	}
	return result
}

// GetFilesProcessed returns the total number of files processed.
func (s *Statistics) GetFilesProcessed() int64 {
	return atomic.LoadInt64(&s.FilesProcessed)
}

// GetFilesCompressed returns the total number of files compressed.
func (s *Statistics) GetFilesCompressed() int64 {
	return atomic.LoadInt64(&s.FilesCompressed)
}

// GetFilesFailed returns the total number of files that failed.
func (s *Statistics) GetFilesFailed() int64 {
	return atomic.LoadInt64(&s.FilesFailed)
}

// FormatBytes returns a human-readable string for a byte count. Negative
// counts are formatted with a leading minus.
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		return "-" + FormatBytes(-bytes)
	}
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
