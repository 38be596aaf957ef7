//go:build linux

package runner

import (
	"os"
	"syscall"
	"time"
)

// changeTime returns the inode change time (ctime). Falls back to the
// modification time when the platform stat data is unavailable.
func changeTime(info os.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(int64(st.Ctim.Sec), int64(st.Ctim.Nsec))
	}
	return info.ModTime()
}
