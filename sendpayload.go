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
)

// sendPayload is §4.4: trims buffer to what the client still needs,
// re-projects to wire shape, applies the contiguity gate, tags the
// bundling trigger (C7), and finally advances lastSeqNo/init.
//
// It is only ever called from the owning dbActor goroutine.
func (a *dbActor) sendPayload(ctx context.Context, payload *ApplyTransactionsMessage, buffer []Transaction) error {
	// Trim to entries still ahead of lastSeqNo, tolerating concurrent
	// advance (defensive; see push.go's note on the single-owner model).
	trimmed := buffer[:0:0]
	for _, t := range buffer {
		if t.SeqNo > a.state.lastSeqNo {
			trimmed = append(trimmed, t)
		}
	}
	if len(trimmed) == 0 {
		return nil
	}

	entries := make([]TransactionEntry, 0, len(trimmed))
	size := 0
	for _, t := range trimmed {
		entries = append(entries, t.toWire())
		size += a.core().opts.EstimateSize(t)
	}

	first := trimmed[0].SeqNo
	contiguous := first == a.state.lastSeqNo+1
	if payload.BundleSeqNo != nil {
		contiguous = contiguous || first == *payload.BundleSeqNo+1
	}
	if !contiguous {
		return fmt.Errorf("sendPayload(%s): contiguity gate: first seqNo %d is neither lastSeqNo+1 (%d) nor bundleSeqNo+1", a.databaseID, first, a.state.lastSeqNo+1)
	}

	payload.TransactionLog = entries

	buildBundle := a.state.transactionLogSize+int64(size) >= int64(a.core().opts.BundleTrigger)
	payload.BuildBundle = buildBundle

	if err := a.conn.Socket.Send(ctx, payload); err != nil {
		return fmt.Errorf("sendPayload(%s): socket send: %w", a.databaseID, err)
	}

	if buildBundle {
		a.state.transactionLogSize = 0
	} else {
		a.state.transactionLogSize += int64(size)
	}
	a.state.lastSeqNo = trimmed[len(trimmed)-1].SeqNo
	a.state.init = true
	return nil
}
