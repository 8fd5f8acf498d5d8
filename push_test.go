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

package syncserver_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/vaultsync/syncserver"
	"github.com/vaultsync/syncserver/testonly"
)

func dbNameHash() *string { s := "name-hash"; return &s }
func dbKey() *string      { s := "db-key"; return &s }

// TestPushOpenEmptyLog covers S1: a first-time open against an empty log
// sends exactly one message carrying dbNameHash/dbKey, no bundle, and an
// empty transactionLog.
func TestPushOpenEmptyLog(t *testing.T) {
	tc := testonly.NewTestCore(t)
	sock := testonly.NewFakeSocket()

	conn, ok := tc.Connect("user-1", "client-1", sock)
	if !ok {
		t.Fatalf("Connect: rejected")
	}
	conn.OpenDatabase("db-1", 0, nil)
	conn.Push("db-1", dbNameHash(), dbKey(), nil)
	conn.Drain("db-1")

	sent := sock.Sent()
	if len(sent) != 1 {
		t.Fatalf("got %d messages, want 1: %+v", len(sent), sent)
	}
	msg, ok := sent[0].(*syncserver.ApplyTransactionsMessage)
	if !ok {
		t.Fatalf("got %T, want *ApplyTransactionsMessage", sent[0])
	}
	want := &syncserver.ApplyTransactionsMessage{
		Route:          syncserver.RouteApplyTransactions,
		DBID:           "db-1",
		DBNameHash:     "name-hash",
		DBKey:          "db-key",
		TransactionLog: nil,
	}
	if diff := cmp.Diff(want, msg); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}
}

// TestPushOpenWithBundle covers S2: opening against a database with a known
// bundle sends the bundle blob plus every transaction after it.
func TestPushOpenWithBundle(t *testing.T) {
	tc := testonly.NewTestCore(t)
	sock := testonly.NewFakeSocket()

	tc.Bundles.Put("db-2", 5, []byte("bundle-blob"))
	seedTx(t, tc, "db-2", 6)
	seedTx(t, tc, "db-2", 7)

	conn, ok := tc.Connect("user-1", "client-1", sock)
	if !ok {
		t.Fatalf("Connect: rejected")
	}
	conn.OpenDatabase("db-2", 5, nil)
	conn.Push("db-2", dbNameHash(), dbKey(), nil)
	conn.Drain("db-2")

	sent := sock.Sent()
	if len(sent) != 1 {
		t.Fatalf("got %d messages, want 1: %+v", len(sent), sent)
	}
	msg := sent[0].(*syncserver.ApplyTransactionsMessage)
	if msg.BundleSeqNo == nil || *msg.BundleSeqNo != 5 {
		t.Fatalf("got BundleSeqNo=%v, want 5", msg.BundleSeqNo)
	}
	if string(msg.Bundle) != "bundle-blob" {
		t.Fatalf("got Bundle=%q, want %q", msg.Bundle, "bundle-blob")
	}
	if len(msg.TransactionLog) != 2 || msg.TransactionLog[0].SeqNo != 6 || msg.TransactionLog[1].SeqNo != 7 {
		t.Fatalf("got TransactionLog=%+v, want seqNos [6 7]", msg.TransactionLog)
	}
}

// TestPushFastPathCommit covers S3: a freshly-committed transaction whose
// seqNo is exactly lastSeqNo+1 is delivered via the fast path without a
// full re-scan.
func TestPushFastPathCommit(t *testing.T) {
	tc := testonly.NewTestCore(t)
	sock := testonly.NewFakeSocket()

	conn, ok := tc.Connect("user-1", "client-1", sock)
	if !ok {
		t.Fatalf("Connect: rejected")
	}
	reopenAt := int64(0)
	conn.OpenDatabase("db-3", 0, &reopenAt)

	tx := syncserver.Transaction{
		DatabaseID:   "db-3",
		SeqNo:        1,
		Command:      syncserver.CommandInsert,
		Key:          "k",
		Record:       []byte("v"),
		CreationDate: tc.Clock.Now(),
	}
	if err := tc.Transactions.ConditionalPut(context.Background(), tx); err != nil {
		t.Fatalf("seed ConditionalPut: %v", err)
	}

	tc.OnTransactionCommitted(context.Background(), tx, "user-1")
	conn.Drain("db-3")

	sent := sock.Sent()
	if len(sent) != 1 {
		t.Fatalf("got %d messages, want 1: %+v", len(sent), sent)
	}
	msg := sent[0].(*syncserver.ApplyTransactionsMessage)
	if len(msg.TransactionLog) != 1 || msg.TransactionLog[0].SeqNo != 1 {
		t.Fatalf("got TransactionLog=%+v, want single entry seqNo 1", msg.TransactionLog)
	}
}

// TestPushYoungGapThenRollback covers S4: a gap younger than the rollback
// threshold produces no delivery; once the clock advances past the
// threshold, a later push rolls the gap forward with a Rollback sentinel
// and delivers everything after it.
func TestPushYoungGapThenRollback(t *testing.T) {
	tc := testonly.NewTestCore(t, syncserver.WithRollbackThreshold(10*time.Second))
	sock := testonly.NewFakeSocket()

	conn, ok := tc.Connect("user-1", "client-1", sock)
	if !ok {
		t.Fatalf("Connect: rejected")
	}
	reopenAt := int64(0)
	conn.OpenDatabase("db-4", 0, &reopenAt)

	// seqNo 1 is missing; seqNo 2 exists, creating a gap at the open.
	seedTx(t, tc, "db-4", 2)

	conn.Push("db-4", nil, nil, nil)
	conn.Drain("db-4")
	if got := len(sock.Sent()); got != 0 {
		t.Fatalf("young gap: got %d messages, want 0: %+v", got, sock.Sent())
	}

	tc.Clock.Advance(11 * time.Second)
	conn.Push("db-4", nil, nil, nil)
	conn.Drain("db-4")

	sent := sock.Sent()
	if len(sent) != 1 {
		t.Fatalf("got %d messages, want 1: %+v", len(sent), sent)
	}
	msg := sent[0].(*syncserver.ApplyTransactionsMessage)
	if len(msg.TransactionLog) != 2 {
		t.Fatalf("got %d entries, want 2 (rollback sentinel + original): %+v", len(msg.TransactionLog), msg.TransactionLog)
	}
	if msg.TransactionLog[0].SeqNo != 1 || msg.TransactionLog[0].Command != syncserver.CommandRollback {
		t.Errorf("got first entry %+v, want Rollback at seqNo 1", msg.TransactionLog[0])
	}
	if msg.TransactionLog[1].SeqNo != 2 {
		t.Errorf("got second entry %+v, want seqNo 2", msg.TransactionLog[1])
	}
}

// TestConnectionPushNoOpWithoutOpen verifies Push is a silent no-op for a
// databaseID the connection never opened.
func TestConnectionPushNoOpWithoutOpen(t *testing.T) {
	tc := testonly.NewTestCore(t)
	sock := testonly.NewFakeSocket()

	conn, ok := tc.Connect("user-1", "client-1", sock)
	if !ok {
		t.Fatalf("Connect: rejected")
	}
	conn.Push("never-opened", dbNameHash(), dbKey(), nil)

	if got := len(sock.Sent()); got != 0 {
		t.Fatalf("got %d messages, want 0", got)
	}
}

func seedTx(t *testing.T, tc *testonly.TestCore, databaseID string, seqNo int64) {
	t.Helper()
	tx := syncserver.Transaction{
		DatabaseID:   databaseID,
		SeqNo:        seqNo,
		Command:      syncserver.CommandInsert,
		Key:          "k",
		Record:       []byte("v"),
		CreationDate: tc.Clock.Now(),
	}
	if err := tc.Transactions.ConditionalPut(context.Background(), tx); err != nil {
		t.Fatalf("seedTx(%s, %d): %v", databaseID, seqNo, err)
	}
}
