//go:build linux

package source

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// ChipReader reads reed contacts wired between a line and ground. The
// line is pulled up, so a raw 1 means the contact is open.
type ChipReader struct {
	chip  *gpiocdev.Chip
	lines map[string]*gpiocdev.Line
}

// NewChipReader requests every pin in pins (sensor id to line offset) as an
// input on the named chip.
func NewChipReader(chipName string, pins map[string]int) (*ChipReader, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	r := &ChipReader{chip: chip, lines: make(map[string]*gpiocdev.Line, len(pins))}
	for id, offset := range pins {
		line, err := chip.RequestLine(offset, gpiocdev.AsInput, gpiocdev.WithPullUp)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", id, offset, err)
		}
		r.lines[id] = line
	}
	return r, nil
}

func (r *ChipReader) Read() (map[string]bool, error) {
	out := make(map[string]bool, len(r.lines))
	for id, line := range r.lines {
		v, err := line.Value()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", id, err)
		}
		out[id] = v == 1
	}
	return out, nil
}

// Close releases every line and the chip.
func (r *ChipReader) Close() error {
	var errs []error
	for id, line := range r.lines {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	return errors.Join(errs...)
}
