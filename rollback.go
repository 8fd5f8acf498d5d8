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
	"errors"
	"fmt"

	"k8s.io/klog/v2"
)

// rollbackGap is C6: for each n in [lo, hi], attempt a conditional put of a
// Rollback sentinel at (databaseID, n). Per the open question in spec.md
// §9, this implementation continues best-effort across the window rather
// than aborting on the first ErrAlreadyExists: a collision at one slot
// means some other writer (or a concurrent push) already resolved that
// slot, which is exactly the outcome rollback was trying to produce, so
// there is no reason to give up on the remaining slots in the window.
//
// Only a non-condition (transient) error aborts the whole window and
// propagates to the caller, which will abandon the enclosing push; the
// state remains consistent because nothing was written at the contested
// slot by this call.
func (a *dbActor) rollbackGap(ctx context.Context, lo, hi int64) ([]Transaction, error) {
	var inserted []Transaction
	for n := lo; n <= hi; n++ {
		tx := newRollback(a.databaseID, n, a.core().opts.Now())
		err := a.core().Transactions.ConditionalPut(ctx, tx)
		switch {
		case err == nil:
			inserted = append(inserted, tx)
		case errors.Is(err, ErrAlreadyExists):
			klog.V(1).Infof("rollback(%s): slot %d already occupied, skipping", a.databaseID, n)
		default:
			return inserted, fmt.Errorf("rollback(%s): conditional put at %d: %w", a.databaseID, n, err)
		}
	}
	return inserted, nil
}
