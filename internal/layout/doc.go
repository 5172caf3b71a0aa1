// Package layout describes where an object's bytes live and turns a byte
// range into a traversal plan.
//
// An Object is tiled by Placements, one contiguous chunk per compute
// service, in object order. Build walks a range of the object and yields,
// for every placement it touches, a read step carrying a Segment (the
// service, its address and the local index vector split at unit
// boundaries) followed by a notice step for the same segment. A done step
// ends the plan.
//
// Segments are numbered in issuance order, which is also ascending object
// order; consumers that fold per-segment results rely on it.
package layout
