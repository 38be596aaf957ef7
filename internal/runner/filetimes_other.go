//go:build !linux

package runner

import (
	"os"
	"time"
)

// changeTime approximates ctime with the modification time on platforms
// where the ctime field is not exposed uniformly.
func changeTime(info os.FileInfo) time.Time {
	return info.ModTime()
}
