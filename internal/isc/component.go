package isc

import (
	"fmt"

	"github.com/spaolacci/murmur3"
)

// Library is the container name every demo function is registered under.
const Library = "libdemo"

// Names of the functions hosted by compute nodes.
const (
	HelloWorld = "hello_world"
	ArrMin     = "arr_min"
	ArrMax     = "arr_max"
)

// ComponentID identifies an in-storage function on every node. It is
// derived from the library and function names only, so client and node
// agree on it without any exchange.
type ComponentID struct {
	Container uint32 `json:"container"`
	Key       uint32 `json:"key"`
}

// NewComponentID returns the identity of function name within Library.
func NewComponentID(name string) ComponentID {
	return ComponentID{
		Container: murmur3.Sum32([]byte(Library)),
		Key:       murmur3.Sum32([]byte(name)),
	}
}

// IsZero tells whether id was never set.
func (id ComponentID) IsZero() bool {
	return id == ComponentID{}
}

func (id ComponentID) String() string {
	return fmt.Sprintf("<%#x:%#x>", id.Container, id.Key)
}
