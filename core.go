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

// Core bundles the store collaborators, tunables, and registry that every
// connection's per-database actor needs to run the push pipeline, rollback
// writer, bundling trigger, and seed mediator. A server entry point
// constructs exactly one Core and threads it into the accept loop; nothing
// here is a package-level global.
type Core struct {
	Registry *Registry

	Transactions TransactionLogStore
	Bundles      BundleStore
	SeedExchange SeedExchangeStore

	opts *Options
}

// NewCore constructs a Core from its store collaborators and options.
func NewCore(registry *Registry, transactions TransactionLogStore, bundles BundleStore, seedExchange SeedExchangeStore, opts ...func(*Options)) *Core {
	return &Core{
		Registry:     registry,
		Transactions: transactions,
		Bundles:      bundles,
		SeedExchange: seedExchange,
		opts:         resolveOptions(opts...),
	}
}

// Connect registers a new connection for userID/clientID over socket. It is
// the entry point the websocket accept loop should call once a handshake
// completes.
func (core *Core) Connect(userID, clientID string, socket Socket) (*Connection, bool) {
	return core.Registry.Register(core, userID, clientID, socket)
}

// Disconnect tears down conn. It is the entry point the accept loop should
// call when the underlying socket closes.
func (core *Core) Disconnect(conn *Connection) {
	core.Registry.Close(conn)
}
