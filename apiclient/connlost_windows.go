//go:build windows

package apiclient

import (
	"errors"

	"golang.org/x/sys/windows"
)

func isResetErrno(err error) bool {
	return errors.Is(err, windows.WSAECONNRESET) ||
		errors.Is(err, windows.WSAECONNABORTED) ||
		errors.Is(err, windows.ERROR_BROKEN_PIPE)
}
