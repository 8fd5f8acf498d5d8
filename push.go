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
	"fmt"

	"k8s.io/klog/v2"
)

// scanState is the explicit state machine the design notes ask for in
// place of an early-abort-via-exception loop: {Scanning, GapYoung,
// GapRolledBack, Done}.
type scanState int

const (
	scanStateScanning scanState = iota
	scanStateGapYoung
	scanStateGapRolledBack
	scanStateDone
)

// push is C5: assembles and sends one logical ApplyTransactions message
// covering everything the client still needs for this database. It always
// runs on the dbActor goroutine.
//
// Exactly one of the following must hold:
//   - opening:   dbNameHash != nil && dbKey != nil && reopenAtSeqNo == nil
//   - reopening: reopenAtSeqNo != nil
//   - otherwise: an incremental push; the database must already be init.
func (a *dbActor) push(ctx context.Context, dbNameHash, dbKey *string, reopenAtSeqNo *int64) error {
	opening := dbNameHash != nil && dbKey != nil && reopenAtSeqNo == nil
	reopening := reopenAtSeqNo != nil

	if !opening && !reopening && !a.state.init {
		klog.Warningf("push(%s): incremental push before init; abandoning", a.databaseID)
		return nil
	}

	payload := &ApplyTransactionsMessage{
		Route: RouteApplyTransactions,
		DBID:  a.databaseID,
	}
	if opening {
		payload.DBNameHash = *dbNameHash
		payload.DBKey = *dbKey
	}

	cursor := a.state.lastSeqNo
	if a.state.bundleSeqNo > 0 && a.state.lastSeqNo == 0 {
		bundle, err := a.getBundle(ctx, a.state.bundleSeqNo)
		if err != nil {
			return fmt.Errorf("push(%s): bundle fetch: %w", a.databaseID, err)
		}
		bsn := a.state.bundleSeqNo
		payload.BundleSeqNo = &bsn
		payload.Bundle = bundle
		cursor = a.state.bundleSeqNo
	}

	buffer, err := a.scan(ctx, cursor)
	if err != nil {
		// Transient store error during push: log and abandon. The
		// client will retry via reconnect, or a later commit will
		// re-trigger fan-out.
		klog.Warningf("push(%s): scan: %v", a.databaseID, err)
		return nil
	}

	// Post-scan precondition re-checks. Under the single-owner actor
	// model these can never actually fire (nothing else mutates
	// a.state concurrently), but they are kept as defensive assertions
	// against a future change to the actor model that reintroduces
	// concurrent state mutation.
	switch {
	case opening && a.state.lastSeqNo != 0:
		klog.Errorf("push(%s): invariant violation: opening but lastSeqNo=%d != 0", a.databaseID, a.state.lastSeqNo)
		return nil
	case reopening && a.state.lastSeqNo != *reopenAtSeqNo:
		klog.Errorf("push(%s): invariant violation: reopening at %d but lastSeqNo=%d", a.databaseID, *reopenAtSeqNo, a.state.lastSeqNo)
		return nil
	case !opening && !reopening && !a.state.init:
		klog.Errorf("push(%s): invariant violation: init flipped false mid-scan", a.databaseID)
		return nil
	}

	if len(buffer) == 0 {
		if opening || reopening {
			if payload.Bundle != nil {
				a.state.lastSeqNo = a.state.bundleSeqNo
			}
			a.state.init = true
			return a.conn.Socket.Send(ctx, payload)
		}
		return nil
	}

	return a.sendPayload(ctx, payload, buffer)
}

// scan implements the range-scan-with-gap-handling loop of §4.3, paginating
// through the TransactionLogStore until either exhausted or an unresolved
// young gap forces an abort.
func (a *dbActor) scan(ctx context.Context, cursor int64) ([]Transaction, error) {
	var buffer []Transaction
	state := scanStateScanning

	for state == scanStateScanning {
		page, err := a.rangeWithRetry(ctx, cursor)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			state = scanStateDone
			break
		}

		for _, t := range page {
			gap := t.SeqNo > cursor+1
			if gap {
				age := a.core().opts.Now().Sub(t.CreationDate)
				if age <= a.core().opts.RollbackThreshold {
					// Young gap: abort without processing t, and
					// without paginating further. The caller retries
					// later.
					state = scanStateGapYoung
					break
				}
				rolled, err := a.rollbackGap(ctx, cursor+1, t.SeqNo-1)
				if err != nil {
					return nil, err
				}
				for _, r := range rolled {
					if r.SeqNo > a.state.lastSeqNo {
						buffer = append(buffer, r)
					}
				}
				state = scanStateGapRolledBack
			}
			cursor = t.SeqNo
			if t.SeqNo > a.state.lastSeqNo {
				buffer = append(buffer, t)
			}
		}

		if state == scanStateGapYoung {
			break
		}
		state = scanStateScanning
		if len(page) < a.core().opts.PageSize {
			state = scanStateDone
			break
		}
	}
	return buffer, nil
}

// rangeWithRetry reads the next page from the TransactionLogStore.
// Retrying transient transport errors (C13) is the store's own concern —
// see internal/store/retrystore — so that a store wrapped with it behaves
// identically here whether or not retries were needed.
func (a *dbActor) rangeWithRetry(ctx context.Context, after int64) ([]Transaction, error) {
	return a.core().Transactions.Range(ctx, a.databaseID, after, a.core().opts.PageSize)
}

func (a *dbActor) getBundle(ctx context.Context, bundleSeqNo int64) ([]byte, error) {
	return a.core().Bundles.Get(ctx, a.databaseID, bundleSeqNo)
}

func (a *dbActor) core() *Core { return a.conn.core }
