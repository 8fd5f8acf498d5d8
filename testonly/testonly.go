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

// Package testonly holds fakes shared across this module's tests: an
// in-memory Socket, a controllable clock, and a constructor for an ephemeral
// Core backed by memstore — mirroring the shape of testonly/testlog.go's
// NewTestLog (ephemeral resource plus shutdown func), adapted from "spin up
// a temp-dir log" to "spin up an in-memory Core".
package testonly

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vaultsync/syncserver"
	"github.com/vaultsync/syncserver/internal/store/memstore"
)

// FakeSocket records every message sent to it and simulates a close frame.
// Safe for concurrent use, since a connection's actor and the fan-out
// dispatcher may both reach the same socket.
type FakeSocket struct {
	mu     sync.Mutex
	sent   []any
	closed bool
	code   int
	reason string

	// SendErr, if set, is returned by every call to Send instead of
	// recording the message.
	SendErr error
}

// NewFakeSocket constructs an empty FakeSocket.
func NewFakeSocket() *FakeSocket {
	return &FakeSocket{}
}

// Send implements syncserver.Socket.
func (f *FakeSocket) Send(_ context.Context, msg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

// Close implements syncserver.Socket.
func (f *FakeSocket) Close(code int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.code = code
	f.reason = reason
	return nil
}

// Sent returns a snapshot of every message passed to Send, in order.
func (f *FakeSocket) Sent() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]any, len(f.sent))
	copy(out, f.sent)
	return out
}

// Closed reports whether Close has been called, and with what code/reason.
func (f *FakeSocket) Closed() (closed bool, code int, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed, f.code, f.reason
}

// Clock is a settable time source for tests that exercise gap aging (the
// rollback threshold) or seed-exchange TTLs without sleeping.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock constructs a Clock fixed at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now implements the func() time.Time shape Options.Now expects.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TestCore is an ephemeral Core backed by memstore, plus direct access to
// its stores for seeding fixtures and the Clock driving it.
type TestCore struct {
	*syncserver.Core
	Transactions *memstore.TransactionLog
	Bundles      *memstore.Bundles
	SeedExchange *memstore.SeedExchange
	Clock        *Clock
}

// NewTestCore builds a TestCore with a fresh Registry and memstore-backed
// stores, applying extraOpts after the deterministic clock is wired in (so
// a test can still override rollback threshold, bundle trigger, etc).
func NewTestCore(t *testing.T, extraOpts ...func(*syncserver.Options)) *TestCore {
	t.Helper()

	clock := NewClock(time.Now())
	transactions := memstore.NewTransactionLog()
	bundles := memstore.NewBundles()
	seedExchange := memstore.NewSeedExchange(clock.Now)

	opts := append([]func(*syncserver.Options){syncserver.WithClock(clock.Now)}, extraOpts...)
	core := syncserver.NewCore(syncserver.NewRegistry(), transactions, bundles, seedExchange, opts...)

	return &TestCore{
		Core:         core,
		Transactions: transactions,
		Bundles:      bundles,
		SeedExchange: seedExchange,
		Clock:        clock,
	}
}
