//go:build unix

package fsx

import (
	"errors"
	"syscall"
)

// isEXDEV 识别跨设备 rename；*os.LinkError 会被 errors.Is 展开。
func isEXDEV(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}
