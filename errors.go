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

import "errors"

// Store condition-violation errors. Implementations of TransactionLogStore,
// BundleStore, and SeedExchangeStore must return these (or wrap them with
// fmt.Errorf("...: %w", ...)) so that callers can distinguish a condition
// violation from a transient transport failure with errors.Is.
var (
	// ErrAlreadyExists is returned by a conditional put when an item already
	// occupies the requested primary key.
	ErrAlreadyExists = errors.New("syncserver: item already exists at primary key")

	// ErrNotFound is returned by Get/update operations when no row exists at
	// the requested key.
	ErrNotFound = errors.New("syncserver: no item at requested key")
)

// ErrClientAlreadyConnected is the close reason used by the registry when a
// second connection registers with a clientId that is already live. It is
// the only error in this package that ever results in a socket close; every
// other error is absorbed at the push/fan-out boundary per the error
// handling design.
var ErrClientAlreadyConnected = errors.New("syncserver: client already connected")
