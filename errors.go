package tscache

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidConfig wraps every construction-time validation failure.
	ErrInvalidConfig = errors.New("invalid cache configuration")

	// ErrEmptyCache is returned by GetEarliest, GetLatest and GetNeighbors
	// when the cache holds no entries.
	ErrEmptyCache = errors.New("cache is empty")
)

// RangeSide tells which boundary a query fell outside of.
type RangeSide int

const (
	// RangeEarlier marks a query predating the earliest available entry.
	RangeEarlier RangeSide = iota
	// RangeLater marks a query postdating the latest available entry.
	RangeLater
)

func (s RangeSide) String() string {
	if s == RangeEarlier {
		return "earlier"
	}
	return "later"
}

// RangeError reports a query date outside what a cache or its Generator can
// currently or ever supply. A Generator returning a RangeError propagates it
// unchanged through the DynamicCache to the caller.
type RangeError struct {
	Query    time.Time
	Boundary time.Time
	Side     RangeSide
}

func (e *RangeError) Error() string {
	if e.Side == RangeEarlier {
		return fmt.Sprintf("query %s predates earliest available data %s",
			e.Query.UTC().Format(time.RFC3339Nano), e.Boundary.UTC().Format(time.RFC3339Nano))
	}
	return fmt.Sprintf("query %s postdates latest available data %s",
		e.Query.UTC().Format(time.RFC3339Nano), e.Boundary.UTC().Format(time.RFC3339Nano))
}

// ContractError reports a Generator that violated its contract: unsorted
// output, a requested boundary left uncovered, or a call that made no
// progress without failing. It marks a defect in the collaborator and is
// never repaired by the cache.
type ContractError struct {
	Reason string
}

func (e *ContractError) Error() string {
	return "generator contract violation: " + e.Reason
}
