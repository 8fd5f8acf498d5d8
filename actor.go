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

package syncserver

import (
	"context"

	"k8s.io/klog/v2"
)

// dbActor is C14: the single-owner goroutine for one Connection's one
// DatabaseState. All mutation of databaseState, and every precondition
// check against it, happens exclusively on this goroutine, which is the
// design alternative named in spec.md §9 as "preferred": it eliminates
// the optimistic re-checks in the push pipeline by construction, because
// commands are processed strictly in arrival order and nothing else ever
// touches the state concurrently.
type dbActor struct {
	conn       *Connection
	databaseID string
	state      *databaseState

	cmds chan actorCmd
	stop chan struct{}
	done chan struct{}
}

// actorCmd is the closed set of operations a dbActor accepts: the three push
// variants, the fan-out commit notification, and the drain barrier.
// Shutdown is not a command; it goes through the stop channel (see close).
type actorCmd interface {
	apply(ctx context.Context, a *dbActor)
}

func newDBActor(conn *Connection, databaseID string, state *databaseState) *dbActor {
	return &dbActor{
		conn:       conn,
		databaseID: databaseID,
		state:      state,
		cmds:       make(chan actorCmd, 64),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (a *dbActor) start() {
	go a.run()
}

func (a *dbActor) run() {
	defer close(a.done)
	ctx := context.Background()
	for {
		select {
		case <-a.stop:
			return
		case cmd := <-a.cmds:
			cmd.apply(ctx, a)
		}
	}
}

// close stops accepting new commands and waits for the run loop to exit.
// A command already being applied runs to completion; commands still queued
// behind it are discarded, not applied.
func (a *dbActor) close() {
	close(a.stop)
	<-a.done
}

// enqueue submits cmd for processing. It never blocks the caller on a
// result; callers that need to know a previously enqueued command has been
// processed (tests, mainly) use drain instead.
func (a *dbActor) enqueue(cmd actorCmd) {
	select {
	case a.cmds <- cmd:
	case <-a.stop:
		klog.V(1).Infof("dbActor(%s): dropping command on closed actor", a.databaseID)
	}
}

// drain blocks until every command enqueued before this call has been
// applied, by enqueueing a barrier behind them and waiting for it.
func (a *dbActor) drain() {
	done := make(chan struct{})
	a.enqueue(cmdBarrier{done: done})
	<-done
}

// cmdBarrier carries no protocol meaning; it exists solely so drain can
// observe that everything enqueued ahead of it has run.
type cmdBarrier struct {
	done chan struct{}
}

func (c cmdBarrier) apply(ctx context.Context, a *dbActor) { close(c.done) }

// --- command types ---

type cmdOpenPush struct {
	dbNameHash, dbKey string
}

func (c cmdOpenPush) apply(ctx context.Context, a *dbActor) {
	dbNameHash, dbKey := c.dbNameHash, c.dbKey
	if err := a.push(ctx, &dbNameHash, &dbKey, nil); err != nil {
		klog.Warningf("dbActor(%s): open push: %v", a.databaseID, err)
	}
}

type cmdReopenPush struct {
	reopenAtSeqNo int64
}

func (c cmdReopenPush) apply(ctx context.Context, a *dbActor) {
	seq := c.reopenAtSeqNo
	if err := a.push(ctx, nil, nil, &seq); err != nil {
		klog.Warningf("dbActor(%s): reopen push: %v", a.databaseID, err)
	}
}

type cmdIncrementalPush struct{}

func (c cmdIncrementalPush) apply(ctx context.Context, a *dbActor) {
	if err := a.push(ctx, nil, nil, nil); err != nil {
		klog.Warningf("dbActor(%s): incremental push: %v", a.databaseID, err)
	}
}

// cmdCommitted implements the fast-path/slow-path split of the fan-out
// dispatcher (C10). It is processed on the actor goroutine, so the
// "is tx.seqNo == lastSeqNo+1" decision is race-free by construction: no
// other goroutine can be mutating lastSeqNo concurrently.
type cmdCommitted struct {
	tx Transaction
}

func (c cmdCommitted) apply(ctx context.Context, a *dbActor) {
	if !a.state.init {
		// The database is open on this socket but its first batch (or
		// header) has not been sent yet; silently drop, so that no bare
		// transaction batch precedes the opening header. The open push
		// still to come reads this transaction from the store.
		return
	}
	if c.tx.SeqNo == a.state.lastSeqNo+1 {
		payload := &ApplyTransactionsMessage{Route: RouteApplyTransactions, DBID: a.databaseID}
		if err := a.sendPayload(ctx, payload, []Transaction{c.tx}); err != nil {
			klog.Warningf("dbActor(%s): fast-path send: %v", a.databaseID, err)
		}
		return
	}
	if err := a.push(ctx, nil, nil, nil); err != nil {
		klog.Warningf("dbActor(%s): slow-path push: %v", a.databaseID, err)
	}
}
