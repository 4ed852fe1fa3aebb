//go:build !windows

package apiclient

import (
	"errors"

	"golang.org/x/sys/unix"
)

func isResetErrno(err error) bool {
	return errors.Is(err, unix.EPIPE) ||
		errors.Is(err, unix.ECONNRESET) ||
		errors.Is(err, unix.ECONNABORTED) ||
		errors.Is(err, unix.ENOTCONN)
}
