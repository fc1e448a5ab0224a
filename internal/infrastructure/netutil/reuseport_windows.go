//go:build windows

package netutil

import "errors"

func setReusePort(uintptr) error {
	return errors.New("SO_REUSEPORT is not supported on windows")
}
