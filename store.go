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
	"encoding/json"
	"time"
)

// TransactionLogStore is the contract for C1: a range-queryable, densely
// (but not necessarily gaplessly) sequenced append-only table keyed by
// (databaseID, seqNo), with conditional writes.
//
// This is an external collaborator: the core treats it as a key-ordered
// range-query store and never assumes anything about its physical layout.
// See internal/store/memstore and internal/store/mysqlstore for reference
// implementations.
type TransactionLogStore interface {
	// Range returns transactions for databaseID with seqNo > after, in
	// ascending seqNo order, at most limit items per call. Callers page
	// through the log by re-invoking Range with the last seen seqNo.
	Range(ctx context.Context, databaseID string, after int64, limit int) ([]Transaction, error)

	// ConditionalPut inserts tx if and only if no transaction already
	// exists at (tx.DatabaseID, tx.SeqNo). It returns ErrAlreadyExists
	// (or a wrapped equivalent, matched with errors.Is) if the slot was
	// already occupied.
	ConditionalPut(ctx context.Context, tx Transaction) error
}

// BundleStore is the contract for C2: fetch a compacted snapshot blob for a
// database at a given bundle sequence number.
type BundleStore interface {
	// Get returns the bundle blob for (databaseID, bundleSeqNo). It
	// returns ErrNotFound if no such bundle exists.
	Get(ctx context.Context, databaseID string, bundleSeqNo int64) ([]byte, error)
}

// SeedExchangeRow is a single row of C3: a pending or completed
// device-to-device seed exchange.
type SeedExchangeRow struct {
	UserID             string
	RequesterPublicKey string
	EncryptedSeed      []byte
	ExpiresAt          time.Time
}

// SeedExchangeStore is the contract for C3: conditional put/update/delete of
// (userID, requesterPublicKey) rows with TTL-based eviction.
type SeedExchangeStore interface {
	// ConditionalPut inserts row if and only if no row already exists at
	// (row.UserID, row.RequesterPublicKey). Returns ErrAlreadyExists on
	// collision.
	ConditionalPut(ctx context.Context, row SeedExchangeRow) error

	// Get returns the row for (userID, requesterPublicKey). Implementations
	// must treat rows past their ExpiresAt as absent and return ErrNotFound.
	Get(ctx context.Context, userID, requesterPublicKey string) (SeedExchangeRow, error)

	// SetEncryptedSeed updates the EncryptedSeed field of an existing row.
	// Returns ErrNotFound if the row is absent or expired.
	SetEncryptedSeed(ctx context.Context, userID, requesterPublicKey string, encryptedSeed []byte) error

	// Delete removes the row, if present. Deleting an absent row is a no-op.
	Delete(ctx context.Context, userID, requesterPublicKey string) error
}

// SizeEstimator estimates the stored byte cost of a Transaction, used to
// drive the bundling trigger (C7). The core treats this as an opaque
// external function, matching estimateSizeOfDdbItem in the original
// protocol.
type SizeEstimator func(tx Transaction) int

// defaultSizeEstimator approximates stored byte cost via the length of the
// transaction's JSON encoding. It is the fallback used when no
// SizeEstimator is supplied via WithSizeEstimator.
func defaultSizeEstimator(tx Transaction) int {
	b, err := json.Marshal(tx)
	if err != nil {
		// A transaction that can't be marshalled is treated as maximally
		// expensive rather than panicking mid-push.
		return 1 << 20
	}
	return len(b)
}
