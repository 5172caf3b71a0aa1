package layout

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"github.com/grailbio/base/errors"
)

// MinLength is the smallest object length a traversal accepts.
const MinLength = 4 << 10

// ID is a 128-bit object identifier.
type ID struct {
	Hi, Lo uint64
}

// ParseID reads an object id written as "hi:lo" or just "lo". Each half may
// use any base prefix understood by strconv (0x, 0o, 0b).
func ParseID(s string) (ID, error) {
	parts := strings.Split(s, ":")
	if len(parts) > 2 {
		return ID{}, errors.E(errors.Invalid, fmt.Sprintf("object id %q: want hi:lo", s))
	}
	var nums []uint64
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 0, 64)
		if err != nil {
			return ID{}, errors.E(errors.Invalid, fmt.Sprintf("object id %q", s), err)
		}
		nums = append(nums, uint64(n))
	}
	if len(nums) == 1 {
		return ID{Lo: nums[0]}, nil
	}
	return ID{Hi: nums[0], Lo: nums[1]}, nil
}

func (id ID) String() string {
	return fmt.Sprintf("%d:%d", id.Hi, id.Lo)
}

// Placement is the contiguous chunk of an object held by one service.
type Placement struct {
	Service string `json:"service"`
	Addr    string `json:"addr"`
	Offset  uint64 `json:"offset"`
	Length  uint64 `json:"length"`
}

// End returns the object offset one past the chunk.
func (p Placement) End() uint64 { return p.Offset + p.Length }

// Object describes how an object's bytes are laid out over services.
// Placements are ordered by offset and tile [0, Size) exactly.
type Object struct {
	ID         string      `json:"id"`
	Size       uint64      `json:"size"`
	UnitSize   uint64      `json:"unit_size"`
	Placements []Placement `json:"extents"`
}

// Validate checks the layout invariants.
func (o *Object) Validate() error {
	if o.ID == "" {
		return errors.E(errors.Invalid, "object id missing")
	}
	if o.UnitSize == 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("object %s: zero unit size", o.ID))
	}
	if len(o.Placements) == 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("object %s: no placements", o.ID))
	}
	var off uint64
	for i, p := range o.Placements {
		if p.Service == "" || p.Addr == "" {
			return errors.E(errors.Invalid, fmt.Sprintf("object %s: placement %d has no service", o.ID, i))
		}
		if p.Offset != off {
			return errors.E(errors.Invalid,
				fmt.Sprintf("object %s: placement %d starts at %d, want %d", o.ID, i, p.Offset, off))
		}
		off = p.End()
	}
	if off != o.Size {
		return errors.E(errors.Invalid, fmt.Sprintf("object %s: placements cover %d of %d bytes", o.ID, off, o.Size))
	}
	return nil
}

// BlockSize is the traversal pass length: one unit on every service.
func (o *Object) BlockSize() uint64 {
	return o.UnitSize * uint64(len(o.Placements))
}

func (o *Object) String() string {
	return fmt.Sprintf("%s (%s, unit %s, %d services)", o.ID,
		units.BytesSize(float64(o.Size)), units.BytesSize(float64(o.UnitSize)), len(o.Placements))
}
