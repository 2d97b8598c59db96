// Package buffer implements populous's write buffer: a bounded, per-item
// FIFO queue of generated rows that flushes to the backend once it fills,
// or on demand, adapted from the reference system's deque-per-item buffer.
package buffer

import (
	"context"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/dbsmedya/populous/internal/backend"
	"github.com/dbsmedya/populous/internal/item"
)

// DefaultMaxLen is the number of rows queued per item before a write is
// triggered automatically, matching the reference system's buffer default.
const DefaultMaxLen = 1000

// queue holds one item's not-yet-written rows plus its resolved PK column
// name, fetched once and reused for every flush.
type queue struct {
	item     *item.Item
	rows     []item.Row
	pkColumn string
}

// Buffer batches rows per item and writes them through a backend.Backend.
type Buffer struct {
	backend backend.Backend
	maxLen  int
	queues  *orderedmap.OrderedMap[string, *queue]
}

// New creates a Buffer bound to be, flushing a item's queue once it reaches
// maxLen rows. Every method takes the ctx of its caller rather than caching
// one at construction time, so a flush triggered from inside an outer
// backend.Transaction joins that same transaction instead of opening its
// own.
func New(be backend.Backend, maxLen int) *Buffer {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &Buffer{
		backend: be,
		maxLen:  maxLen,
		queues:  orderedmap.NewOrderedMap[string, *queue](),
	}
}

// Add implements item.Buffer: it appends row to it's queue, writing the
// whole queue out once it reaches the configured maxLen.
func (b *Buffer) Add(ctx context.Context, it *item.Item, row item.Row) error {
	q, ok := b.queues.Get(it.Name)
	if !ok {
		q = &queue{item: it}
		b.queues.Set(it.Name, q)
	}

	q.rows = append(q.rows, row)
	if len(q.rows) >= b.maxLen {
		return b.flushQueue(ctx, q)
	}
	return nil
}

// Flush forces it's queue to be written now, even if it hasn't reached
// maxLen. A no-op if the queue is empty or doesn't exist yet.
func (b *Buffer) Flush(ctx context.Context, it *item.Item) error {
	q, ok := b.queues.Get(it.Name)
	if !ok || len(q.rows) == 0 {
		return nil
	}
	return b.flushQueue(ctx, q)
}

// FlushAll writes out every item's queue, in the order items first appeared
// in the buffer. Called once generation has finished producing rows, so
// nothing is left sitting unwritten below an item's maxLen threshold.
func (b *Buffer) FlushAll(ctx context.Context) error {
	for _, name := range b.queues.Keys() {
		q, _ := b.queues.Get(name)
		if len(q.rows) == 0 {
			continue
		}
		if err := b.flushQueue(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (b *Buffer) flushQueue(ctx context.Context, q *queue) error {
	rows := q.rows
	q.rows = nil

	if q.pkColumn == "" {
		pk, err := b.backend.GetPKColumn(ctx, q.item.Table)
		if err != nil {
			return err
		}
		q.pkColumn = pk
	}

	columns := q.item.DbFields()
	values := make([][]any, len(rows))
	for i, row := range rows {
		rowValues := make([]any, len(columns))
		for j, col := range columns {
			rowValues[j] = row[col]
		}
		values[i] = rowValues
	}

	var ids []any
	err := b.backend.Transaction(ctx, func(ctx context.Context) error {
		written, err := b.backend.Write(ctx, q.item.Table, q.pkColumn, columns, values)
		if err != nil {
			return err
		}
		ids = written
		return nil
	})
	if err != nil {
		return err
	}

	return q.item.BatchWritten(ctx, rows, ids)
}
