//go:build !unix

package transport

import (
	"errors"
	"os"
)

func isPermissionErrno(err error) bool {
	return errors.Is(err, os.ErrPermission)
}

func isFamilyErrno(error) bool { return false }

func isFatalErrno(error) bool { return false }
