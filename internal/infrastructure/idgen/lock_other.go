//go:build !unix

package idgen

import (
	"errors"
	"os"
)

func lockFile(_ *os.File) error {
	return errors.ErrUnsupported
}

func unlockFile(_ *os.File) error {
	return nil
}
