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

package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vaultsync/syncserver"
)

type recorder struct {
	mu    sync.Mutex
	calls []call
}

type call struct {
	userID string
	seqNo  int64
}

func (r *recorder) dispatch(_ context.Context, tx syncserver.Transaction, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{userID: userID, seqNo: tx.SeqNo})
}

func (r *recorder) snapshot() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]call, len(r.calls))
	copy(out, r.calls)
	return out
}

// TestCoalescerFlushesOnlyHighestSeqNoPerKey exercises the common case: many
// rapid commits to the same database collapse into a single notification
// carrying the latest sequence number, once the window closes.
func TestCoalescerFlushesOnlyHighestSeqNoPerKey(t *testing.T) {
	rec := &recorder{}
	// A long window and large batch mean the only flush in this test is the
	// explicit one triggered by Close.
	c := New(context.Background(), time.Hour, 1000, rec.dispatch)

	for seq := int64(1); seq <= 5; seq++ {
		c.OnCommitted(syncserver.Transaction{DatabaseID: "db-1", SeqNo: seq}, "user-1")
	}
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	calls := rec.snapshot()
	if len(calls) != 1 {
		t.Fatalf("got %d dispatch calls, want 1: %+v", len(calls), calls)
	}
	if calls[0] != (call{userID: "user-1", seqNo: 5}) {
		t.Errorf("got %+v, want {user-1 5}", calls[0])
	}
}

// TestCoalescerTracksDistinctKeysSeparately verifies two different
// (userID, databaseID) pairs each get their own dispatch.
func TestCoalescerTracksDistinctKeysSeparately(t *testing.T) {
	rec := &recorder{}
	c := New(context.Background(), time.Hour, 1000, rec.dispatch)

	c.OnCommitted(syncserver.Transaction{DatabaseID: "db-1", SeqNo: 1}, "user-1")
	c.OnCommitted(syncserver.Transaction{DatabaseID: "db-2", SeqNo: 1}, "user-1")
	c.OnCommitted(syncserver.Transaction{DatabaseID: "db-1", SeqNo: 1}, "user-2")

	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := len(rec.snapshot()); got != 3 {
		t.Fatalf("got %d dispatch calls, want 3 (one per distinct key)", got)
	}
}
