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

// Package retrystore wraps the store contracts (C1-C3) with transient-error
// retries (C13), so that a flaky backend — a MySQL connection blip, a
// dropped TCP segment — doesn't have to be handled by every caller
// individually. Condition-violation errors (ErrAlreadyExists, ErrNotFound)
// are never retried: they are the store telling the caller something true
// about its state, not a transport hiccup.
package retrystore

import (
	"context"
	"errors"

	"github.com/avast/retry-go/v4"

	"github.com/vaultsync/syncserver"
)

// defaultAttempts bounds how many times an operation is retried before the
// caller sees the underlying error.
const defaultAttempts = 4

// TransactionLog wraps a syncserver.TransactionLogStore with retries.
type TransactionLog struct {
	delegate syncserver.TransactionLogStore
	attempts uint
}

// NewTransactionLog wraps delegate. attempts of 0 selects defaultAttempts.
func NewTransactionLog(delegate syncserver.TransactionLogStore, attempts uint) *TransactionLog {
	if attempts == 0 {
		attempts = defaultAttempts
	}
	return &TransactionLog{delegate: delegate, attempts: attempts}
}

// Range implements syncserver.TransactionLogStore.
func (t *TransactionLog) Range(ctx context.Context, databaseID string, after int64, limit int) ([]syncserver.Transaction, error) {
	var out []syncserver.Transaction
	err := retry.Do(func() error {
		var err error
		out, err = t.delegate.Range(ctx, databaseID, after, limit)
		return unrecoverableIfCondition(err)
	}, retry.Context(ctx), retry.Attempts(t.attempts))
	return out, err
}

// ConditionalPut implements syncserver.TransactionLogStore. A condition
// violation (ErrAlreadyExists) is surfaced on the first attempt: retrying it
// would never change the outcome.
func (t *TransactionLog) ConditionalPut(ctx context.Context, tx syncserver.Transaction) error {
	return retry.Do(func() error {
		return unrecoverableIfCondition(t.delegate.ConditionalPut(ctx, tx))
	}, retry.Context(ctx), retry.Attempts(t.attempts))
}

// Bundles wraps a syncserver.BundleStore with retries.
type Bundles struct {
	delegate syncserver.BundleStore
	attempts uint
}

// NewBundles wraps delegate. attempts of 0 selects defaultAttempts.
func NewBundles(delegate syncserver.BundleStore, attempts uint) *Bundles {
	if attempts == 0 {
		attempts = defaultAttempts
	}
	return &Bundles{delegate: delegate, attempts: attempts}
}

// Get implements syncserver.BundleStore.
func (b *Bundles) Get(ctx context.Context, databaseID string, bundleSeqNo int64) ([]byte, error) {
	var out []byte
	err := retry.Do(func() error {
		var err error
		out, err = b.delegate.Get(ctx, databaseID, bundleSeqNo)
		return unrecoverableIfCondition(err)
	}, retry.Context(ctx), retry.Attempts(b.attempts))
	return out, err
}

// SeedExchange wraps a syncserver.SeedExchangeStore with retries.
type SeedExchange struct {
	delegate syncserver.SeedExchangeStore
	attempts uint
}

// NewSeedExchange wraps delegate. attempts of 0 selects defaultAttempts.
func NewSeedExchange(delegate syncserver.SeedExchangeStore, attempts uint) *SeedExchange {
	if attempts == 0 {
		attempts = defaultAttempts
	}
	return &SeedExchange{delegate: delegate, attempts: attempts}
}

// ConditionalPut implements syncserver.SeedExchangeStore.
func (s *SeedExchange) ConditionalPut(ctx context.Context, row syncserver.SeedExchangeRow) error {
	return retry.Do(func() error {
		return unrecoverableIfCondition(s.delegate.ConditionalPut(ctx, row))
	}, retry.Context(ctx), retry.Attempts(s.attempts))
}

// Get implements syncserver.SeedExchangeStore.
func (s *SeedExchange) Get(ctx context.Context, userID, requesterPublicKey string) (syncserver.SeedExchangeRow, error) {
	var out syncserver.SeedExchangeRow
	err := retry.Do(func() error {
		var err error
		out, err = s.delegate.Get(ctx, userID, requesterPublicKey)
		return unrecoverableIfCondition(err)
	}, retry.Context(ctx), retry.Attempts(s.attempts))
	return out, err
}

// SetEncryptedSeed implements syncserver.SeedExchangeStore.
func (s *SeedExchange) SetEncryptedSeed(ctx context.Context, userID, requesterPublicKey string, encryptedSeed []byte) error {
	return retry.Do(func() error {
		return unrecoverableIfCondition(s.delegate.SetEncryptedSeed(ctx, userID, requesterPublicKey, encryptedSeed))
	}, retry.Context(ctx), retry.Attempts(s.attempts))
}

// Delete implements syncserver.SeedExchangeStore.
func (s *SeedExchange) Delete(ctx context.Context, userID, requesterPublicKey string) error {
	return retry.Do(func() error {
		return unrecoverableIfCondition(s.delegate.Delete(ctx, userID, requesterPublicKey))
	}, retry.Context(ctx), retry.Attempts(s.attempts))
}

// unrecoverableIfCondition marks condition-violation errors as
// retry.Unrecoverable so retry.Do returns them immediately instead of
// burning through attempts on an outcome that will never change.
func unrecoverableIfCondition(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, syncserver.ErrAlreadyExists) || errors.Is(err, syncserver.ErrNotFound) {
		return retry.Unrecoverable(err)
	}
	return err
}
