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

	"golang.org/x/sync/errgroup"
)

// OnTransactionCommitted is C10: the entry point the write path (external,
// out of scope) calls once a transaction has been durably appended to C1.
// It notifies every connection of userID that has opened tx.DatabaseID.
//
// The actual fast-path-vs-slow-path decision (§4.6) is made on each
// connection's per-database actor goroutine, not here, since only that
// goroutine can safely read its own databaseState.lastSeqNo. This
// dispatcher's only job is routing: find the right actor for each
// connection and enqueue a notification, fanning out across connections
// concurrently so one slow/stuck connection never delays delivery to its
// siblings.
func (core *Core) OnTransactionCommitted(ctx context.Context, tx Transaction, userID string) {
	conns := core.Registry.connectionsFor(userID)
	if len(conns) == 0 {
		return
	}

	g, _ := errgroup.WithContext(ctx)
	for _, conn := range conns {
		conn := conn
		g.Go(func() error {
			a := conn.dbActorFor(tx.DatabaseID)
			if a == nil {
				// Missing DatabaseState on fan-out: silent no-op, per
				// the error handling design — this socket simply
				// hasn't opened that database.
				return nil
			}
			a.enqueue(cmdCommitted{tx: tx})
			return nil
		})
	}
	// enqueue never returns an error; Wait only blocks until every
	// connection's lookup+enqueue has completed.
	_ = g.Wait()
}
