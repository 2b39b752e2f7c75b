/*
Package loader – batch partitioner.
*/
package loader

import "slices"

// MaxBatchWriteItems is the BatchWriteItem per-request item limit.
const MaxBatchWriteItems = 25

// Batches is an ordered partition of items. A partition of one chunk is a
// single request and is submitted and dumped differently from a multi-request
// partition, see Single.
type Batches[T any] [][]T

// Partition splits items into chunks of at most limit, preserving order.
// A limit outside 1..MaxBatchWriteItems is replaced by MaxBatchWriteItems.
// An input that fits within limit yields exactly one chunk holding the input.
func Partition[T any](items []T, limit int) Batches[T] {
	if limit <= 0 || limit > MaxBatchWriteItems {
		limit = MaxBatchWriteItems
	}
	if len(items) == 0 {
		return nil
	}
	if len(items) <= limit {
		return Batches[T]{items}
	}
	out := make(Batches[T], 0, (len(items)+limit-1)/limit)
	for chunk := range slices.Chunk(items, limit) {
		out = append(out, chunk)
	}
	return out
}

// Single reports whether the partition is a single request.
func (b Batches[T]) Single() bool { return len(b) == 1 }

// Len is the total number of items across all chunks.
func (b Batches[T]) Len() int {
	n := 0
	for _, c := range b {
		n += len(c)
	}
	return n
}
