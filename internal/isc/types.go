package isc

import "math"

// DefaultReplyCap bounds the encoded reply of a single function call.
const DefaultReplyCap = 4096

// Extent is a byte range within the chunk a node stores for an object.
type Extent struct {
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
}

// End returns the offset one past the extent.
func (e Extent) End() uint64 { return e.Offset + e.Length }

// Targs is the input of the array reduction functions: the object and the
// index vector of local extents the call must cover, in ascending order.
type Targs struct {
	Object  string   `json:"object"`
	Extents []Extent `json:"extents"`
}

// MinMaxResult is what arr_min and arr_max return for one segment of text.
//
// Positions are local to the segment. Position 0 belongs to the element
// whose text begins with Left (it may continue a number from the previous
// segment), complete numbers occupy 1..MaxIndex-1 and Right sits at
// MaxIndex. When Split is false the segment holds no separator at all and
// its whole text is in Left.
type MinMaxResult struct {
	Value    float64 `json:"val"`
	Index    uint64  `json:"idx"`
	MaxIndex uint64  `json:"idx_max"`
	Left     string  `json:"lbuf"`
	Right    string  `json:"rbuf"`
	Found    bool    `json:"found"`
	Split    bool    `json:"split"`
}

// Direction selects the reduction: the minimum or the maximum.
type Direction int

const (
	Min Direction = iota
	Max
)

func (d Direction) String() string {
	if d == Max {
		return "max"
	}
	return "min"
}

// Component returns the function computing d on a node.
func (d Direction) Component() ComponentID {
	if d == Max {
		return NewComponentID(ArrMax)
	}
	return NewComponentID(ArrMin)
}

// Better reports whether candidate is strictly more extreme than current.
// Ties keep current, so the earliest occurrence of an extreme wins.
func (d Direction) Better(candidate, current float64) bool {
	if d == Max {
		return candidate > current
	}
	return candidate < current
}

// usable reports whether v can take part in a reduction and be encoded.
func usable(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
