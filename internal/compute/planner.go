package compute

import (
	"fmt"

	"github.com/grailbio/base/errors"

	"github.com/dreamware/isc/internal/cluster"
)

// Chunk is the half-open range of array elements assigned to one service.
type Chunk struct {
	Service    cluster.NodeInfo
	Start, End uint64
}

// Len returns the number of elements in the chunk.
func (c Chunk) Len() uint64 { return c.End - c.Start }

// ChunkLen returns the number of elements per service. Having more services
// than elements would leave services without work and is refused rather
// than silently clamped.
func ChunkLen(total uint64, services int) (uint64, error) {
	if services <= 0 {
		return 0, errors.E(errors.Invalid, "no services to plan chunks over")
	}
	if uint64(services) > total {
		return 0, errors.E(errors.Invalid,
			fmt.Sprintf("%d services for %d elements: every service needs at least one element", services, total))
	}
	return total / uint64(services), nil
}

// PlanChunks splits [0, total) into one contiguous chunk per service, in
// service order. The last chunk absorbs the remainder.
func PlanChunks(total uint64, services []cluster.NodeInfo) ([]Chunk, error) {
	n, err := ChunkLen(total, len(services))
	if err != nil {
		return nil, err
	}
	chunks := make([]Chunk, len(services))
	for i, s := range services {
		chunks[i] = Chunk{Service: s, Start: uint64(i) * n, End: uint64(i+1) * n}
	}
	chunks[len(chunks)-1].End = total
	return chunks, nil
}
