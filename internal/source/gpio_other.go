//go:build !linux

package source

import "errors"

// ChipReader is not available on non-Linux platforms.
type ChipReader struct{}

// NewChipReader returns an error on non-Linux platforms.
func NewChipReader(string, map[string]int) (*ChipReader, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

func (r *ChipReader) Read() (map[string]bool, error) {
	return nil, errors.New("gpio: not supported")
}

func (r *ChipReader) Close() error { return nil }
