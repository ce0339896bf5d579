//go:build !unix

package mmap

import (
	"errors"
	"os"
)

var errUnsupported = errors.New("mmap: not supported on this platform")

func mmap(*os.File, int) ([]byte, error) { return nil, errUnsupported }

func munmap([]byte) error { return nil }
