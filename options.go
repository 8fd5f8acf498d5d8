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

import "time"

const (
	// DefaultRollbackThreshold is the tolerated dwell time for an unfilled
	// sequence number before the server declares it dead and inserts a
	// Rollback sentinel. Named SECONDS_BEFORE_ROLLBACK_GAP_TRIGGERED in the
	// original protocol.
	DefaultRollbackThreshold = 10 * time.Second

	// DefaultBundleTrigger is the cumulative unbundled byte threshold past
	// which an outbound batch is tagged with buildBundle. Named
	// TRANSACTION_SIZE_BUNDLE_TRIGGER in the original protocol.
	DefaultBundleTrigger = 50 * 1024

	// DefaultPageSize bounds how many transactions a single Range call to
	// the TransactionLogStore may return.
	DefaultPageSize = 256
)

// Options holds the tunables for a Core. Zero value is invalid; construct
// via resolveOptions.
type Options struct {
	RollbackThreshold time.Duration
	BundleTrigger     int
	PageSize          int
	EstimateSize      SizeEstimator
	Now               func() time.Time
}

// resolveOptions turns a variadic array of options into an Options
// instance, the same pattern as resolveAppendOptions in the storage
// backends this package's design is grounded on.
func resolveOptions(opts ...func(*Options)) *Options {
	o := &Options{
		RollbackThreshold: DefaultRollbackThreshold,
		BundleTrigger:     DefaultBundleTrigger,
		PageSize:          DefaultPageSize,
		EstimateSize:      defaultSizeEstimator,
		Now:               time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithRollbackThreshold overrides DefaultRollbackThreshold.
func WithRollbackThreshold(d time.Duration) func(*Options) {
	return func(o *Options) { o.RollbackThreshold = d }
}

// WithBundleTrigger overrides DefaultBundleTrigger.
func WithBundleTrigger(bytes int) func(*Options) {
	return func(o *Options) { o.BundleTrigger = bytes }
}

// WithPageSize overrides DefaultPageSize.
func WithPageSize(n int) func(*Options) {
	return func(o *Options) { o.PageSize = n }
}

// WithSizeEstimator replaces the default JSON-length size estimator.
func WithSizeEstimator(f SizeEstimator) func(*Options) {
	return func(o *Options) { o.EstimateSize = f }
}

// WithClock overrides the time source. Exposed for tests (including those
// in other packages, via testonly) that need deterministic control over gap
// aging and seed-exchange TTLs.
func WithClock(now func() time.Time) func(*Options) {
	return func(o *Options) { o.Now = now }
}
