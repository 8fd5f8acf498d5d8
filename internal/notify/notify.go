// Copyright 2026 The vaultsync authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package notify coalesces bursts of commit notifications for the same
// database into a single dispatch, the way storage/internal.Queue coalesces
// writes: a batch import or a hot key can commit many transactions to one
// database within milliseconds, and each commit on its own would wake every
// subscribed connection's actor even though only the final cursor position
// matters to a fan-out decision.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/globocom/go-buffer"
	"k8s.io/klog/v2"

	"github.com/vaultsync/syncserver"
)

// DispatchFunc delivers one coalesced notification. It is called once per
// distinct (userID, databaseID) pair seen in a flush, with tx set to the
// highest-SeqNo transaction observed for that pair during the window.
type DispatchFunc func(ctx context.Context, tx syncserver.Transaction, userID string)

// Coalescer batches OnCommitted calls and flushes at most one notification
// per database per window.
type Coalescer struct {
	dispatch DispatchFunc
	buf      *buffer.Buffer

	mu      sync.Mutex
	pending map[notifyKey]pendingEntry
}

type notifyKey struct {
	userID     string
	databaseID string
}

type pendingEntry struct {
	tx syncserver.Transaction
}

// New constructs a Coalescer that flushes at most once per window, or
// immediately once maxBatch OnCommitted calls have accumulated (repeat
// calls for the same key each count), whichever comes first.
func New(ctx context.Context, window time.Duration, maxBatch uint, dispatch DispatchFunc) *Coalescer {
	c := &Coalescer{
		dispatch: dispatch,
		pending:  make(map[notifyKey]pendingEntry),
	}
	c.buf = buffer.New(
		buffer.WithSize(maxBatch),
		buffer.WithFlushInterval(window),
		buffer.WithFlusher(buffer.FlusherFunc(func(items []interface{}) {
			c.flush(ctx)
		})),
	)
	return c
}

// OnCommitted records that tx committed for userID, superseding any
// not-yet-flushed notification for the same (userID, tx.DatabaseID) pair.
func (c *Coalescer) OnCommitted(tx syncserver.Transaction, userID string) {
	key := notifyKey{userID: userID, databaseID: tx.DatabaseID}

	c.mu.Lock()
	if prev, ok := c.pending[key]; !ok || tx.SeqNo > prev.tx.SeqNo {
		c.pending[key] = pendingEntry{tx: tx}
	}
	c.mu.Unlock()

	if err := c.buf.Push(key); err != nil {
		klog.Warningf("notify: push: %v", err)
	}
}

// flush dispatches one notification per key accumulated since the last
// flush. Keys pushed to the underlying buffer after pending's snapshot is
// taken belong to the next window, not this one.
func (c *Coalescer) flush(ctx context.Context) {
	c.mu.Lock()
	batch := c.pending
	c.pending = make(map[notifyKey]pendingEntry)
	c.mu.Unlock()

	for key, entry := range batch {
		c.dispatch(ctx, entry.tx, key.userID)
	}
}

// Close flushes any pending notifications and stops accepting new ones.
func (c *Coalescer) Close(ctx context.Context) error {
	if err := c.buf.Flush(); err != nil {
		return err
	}
	if err := c.buf.Close(); err != nil {
		return err
	}
	// Belt and braces: Flush only signals the buffer's consumer goroutine,
	// and Close waits for that goroutine to exit. A notification recorded in
	// pending whose buffer Push failed is dispatched here rather than
	// silently dropped.
	c.flush(ctx)
	return nil
}
