// Package tscache provides time-indexed neighbor caches for astrodynamics
// data supply: given an arbitrary query instant, a cache returns a fixed-size
// window of the chronologically closest samples, computing or fetching missing
// samples on demand while bounding memory.
//
// Two variants share one neighbor-selection rule. FixedCache wraps a fully
// known chronological sequence and answers queries by search alone.
// DynamicCache maintains a bounded set of contiguous covered sub-ranges
// (slots), grows them through a user-supplied Generator, merges slots that
// grow into one another, and evicts the least-recently-used slot when the
// slot bound is exceeded.
//
// Both caches are safe for concurrent use. A DynamicCache serializes all
// Generator invocations through a single point, so Generator implementations
// never need their own locking as long as exactly one cache owns them.
// Returned windows are snapshot copies; later eviction cannot invalidate
// results already handed to a caller.
package tscache
