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

// Package memstore provides an in-memory reference implementation of the
// TransactionLogStore, BundleStore, and SeedExchangeStore contracts (C11).
// It backs unit tests and the standalone example server; it is not meant
// for multi-process deployments.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vaultsync/syncserver"
)

// TransactionLog is an in-memory TransactionLogStore.
type TransactionLog struct {
	mu   sync.Mutex
	rows map[string]map[int64]syncserver.Transaction // databaseID -> seqNo -> tx
}

// NewTransactionLog constructs an empty TransactionLog.
func NewTransactionLog() *TransactionLog {
	return &TransactionLog{rows: make(map[string]map[int64]syncserver.Transaction)}
}

// Range implements syncserver.TransactionLogStore.
func (s *TransactionLog) Range(_ context.Context, databaseID string, after int64, limit int) ([]syncserver.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := s.rows[databaseID]
	seqs := make([]int64, 0, len(byID))
	for seq := range byID {
		if seq > after {
			seqs = append(seqs, seq)
		}
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	if len(seqs) > limit {
		seqs = seqs[:limit]
	}
	out := make([]syncserver.Transaction, 0, len(seqs))
	for _, seq := range seqs {
		out = append(out, byID[seq])
	}
	return out, nil
}

// ConditionalPut implements syncserver.TransactionLogStore.
func (s *TransactionLog) ConditionalPut(_ context.Context, tx syncserver.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.rows[tx.DatabaseID]
	if !ok {
		byID = make(map[int64]syncserver.Transaction)
		s.rows[tx.DatabaseID] = byID
	}
	if _, exists := byID[tx.SeqNo]; exists {
		return syncserver.ErrAlreadyExists
	}
	byID[tx.SeqNo] = tx
	return nil
}

// Bundles is an in-memory BundleStore.
type Bundles struct {
	mu    sync.Mutex
	blobs map[string]map[int64][]byte
}

// NewBundles constructs an empty Bundles store.
func NewBundles() *Bundles {
	return &Bundles{blobs: make(map[string]map[int64][]byte)}
}

// Put stores a bundle blob; exposed for seeding test fixtures (the core
// never calls this — bundling is client-driven).
func (b *Bundles) Put(databaseID string, bundleSeqNo int64, blob []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	byID, ok := b.blobs[databaseID]
	if !ok {
		byID = make(map[int64][]byte)
		b.blobs[databaseID] = byID
	}
	byID[bundleSeqNo] = blob
}

// Get implements syncserver.BundleStore.
func (b *Bundles) Get(_ context.Context, databaseID string, bundleSeqNo int64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	byID, ok := b.blobs[databaseID]
	if !ok {
		return nil, syncserver.ErrNotFound
	}
	blob, ok := byID[bundleSeqNo]
	if !ok {
		return nil, syncserver.ErrNotFound
	}
	return blob, nil
}

// SeedExchange is an in-memory SeedExchangeStore.
type SeedExchange struct {
	mu   sync.Mutex
	rows map[[2]string]syncserver.SeedExchangeRow
	now  func() time.Time
}

// NewSeedExchange constructs an empty SeedExchange store.
func NewSeedExchange(now func() time.Time) *SeedExchange {
	if now == nil {
		now = time.Now
	}
	return &SeedExchange{rows: make(map[[2]string]syncserver.SeedExchangeRow), now: now}
}

func key(userID, requesterPublicKey string) [2]string { return [2]string{userID, requesterPublicKey} }

// ConditionalPut implements syncserver.SeedExchangeStore.
func (s *SeedExchange) ConditionalPut(_ context.Context, row syncserver.SeedExchangeRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(row.UserID, row.RequesterPublicKey)
	if existing, ok := s.rows[k]; ok && existing.ExpiresAt.After(s.now()) {
		return syncserver.ErrAlreadyExists
	}
	s.rows[k] = row
	return nil
}

// Get implements syncserver.SeedExchangeStore.
func (s *SeedExchange) Get(_ context.Context, userID, requesterPublicKey string) (syncserver.SeedExchangeRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[key(userID, requesterPublicKey)]
	if !ok || !row.ExpiresAt.After(s.now()) {
		return syncserver.SeedExchangeRow{}, syncserver.ErrNotFound
	}
	return row, nil
}

// SetEncryptedSeed implements syncserver.SeedExchangeStore.
func (s *SeedExchange) SetEncryptedSeed(_ context.Context, userID, requesterPublicKey string, encryptedSeed []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(userID, requesterPublicKey)
	row, ok := s.rows[k]
	if !ok || !row.ExpiresAt.After(s.now()) {
		return syncserver.ErrNotFound
	}
	row.EncryptedSeed = encryptedSeed
	s.rows[k] = row
	return nil
}

// Delete implements syncserver.SeedExchangeStore.
func (s *SeedExchange) Delete(_ context.Context, userID, requesterPublicKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, key(userID, requesterPublicKey))
	return nil
}
