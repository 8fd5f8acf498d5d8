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
	"sync"

	"github.com/google/uuid"
)

// Connection is a live session belonging to one user's one device.
type Connection struct {
	ID       string
	UserID   string
	ClientID string
	Socket   Socket

	core *Core

	mu                 sync.Mutex
	keyValidated       bool
	requesterPublicKey string // empty if this socket has no pending request

	dbMu      sync.Mutex
	databases map[string]*dbActor
}

func newConnection(core *Core, userID, clientID string, socket Socket) *Connection {
	return &Connection{
		ID:        uuid.NewString(),
		UserID:    userID,
		ClientID:  clientID,
		Socket:    socket,
		core:      core,
		databases: make(map[string]*dbActor),
	}
}

// ValidateKey flips keyValidated on this connection. It is invoked by the
// external auth path once the client has proved possession of the user's
// key via a DH-encrypted validation message. Until this is called, the
// connection can receive transactions but is not an eligible seed-request
// broadcast target.
func (c *Connection) ValidateKey() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keyValidated = true
}

func (c *Connection) isKeyValidated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keyValidated
}

// setRequesterPublicKey records the public key of a pending seed request
// this connection issued as the requester.
func (c *Connection) setRequesterPublicKey(pub string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requesterPublicKey = pub
}

func (c *Connection) getRequesterPublicKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requesterPublicKey
}

// OpenDatabase creates the DatabaseState for databaseID on this connection
// and starts its per-database actor (C14), per spec §4.2.
//
// bundleSeqNo is normalized to -1 if non-positive. reopenAtSeqNo, if
// non-nil, indicates the client already has the header and is resuming
// from a known point; lastSeqNo is seeded from it and init is set true
// immediately, since no init preamble is needed for a reopen.
func (c *Connection) OpenDatabase(databaseID string, bundleSeqNo int64, reopenAtSeqNo *int64) {
	if bundleSeqNo <= 0 {
		bundleSeqNo = -1
	}
	state := &databaseState{
		bundleSeqNo: bundleSeqNo,
	}
	if reopenAtSeqNo != nil {
		state.lastSeqNo = *reopenAtSeqNo
		state.init = true
	}

	a := newDBActor(c, databaseID, state)
	c.dbMu.Lock()
	c.databases[databaseID] = a
	c.dbMu.Unlock()
	a.start()
}

// dbActorFor returns the actor for databaseID, or nil if that database has
// not been opened on this connection. Per §4.1, missing entries are a
// silent no-op for callers that cross components (the connection may have
// died, or never opened this database).
func (c *Connection) dbActorFor(databaseID string) *dbActor {
	c.dbMu.Lock()
	defer c.dbMu.Unlock()
	return c.databases[databaseID]
}

// Push is the external entry point for push(databaseId, dbNameHash?, dbKey?,
// reopenAtSeqNo?): the message-handling loop (out of scope here) calls this
// once it has parsed a client's open/reopen/poll request. It routes onto
// databaseID's actor, matching the exact precondition shape push() itself
// checks:
//   - opening:   dbNameHash != nil && dbKey != nil && reopenAtSeqNo == nil
//   - reopening: reopenAtSeqNo != nil
//   - otherwise: an incremental push
//
// A databaseID that was never opened on this connection is a silent no-op.
func (c *Connection) Push(databaseID string, dbNameHash, dbKey *string, reopenAtSeqNo *int64) {
	a := c.dbActorFor(databaseID)
	if a == nil {
		return
	}
	switch {
	case dbNameHash != nil && dbKey != nil && reopenAtSeqNo == nil:
		a.enqueue(cmdOpenPush{dbNameHash: *dbNameHash, dbKey: *dbKey})
	case reopenAtSeqNo != nil:
		a.enqueue(cmdReopenPush{reopenAtSeqNo: *reopenAtSeqNo})
	default:
		a.enqueue(cmdIncrementalPush{})
	}
}

// Drain blocks until every command already enqueued for databaseID's actor
// has been applied. It is a test seam: production callers never need to
// know when an asynchronous push has finished. A databaseID that was never
// opened on this connection is a no-op.
func (c *Connection) Drain(databaseID string) {
	if a := c.dbActorFor(databaseID); a != nil {
		a.drain()
	}
}

// closeDatabases stops every per-database actor owned by this connection.
// Called when the connection itself is closed.
func (c *Connection) closeDatabases() {
	c.dbMu.Lock()
	actors := make([]*dbActor, 0, len(c.databases))
	for _, a := range c.databases {
		actors = append(actors, a)
	}
	c.databases = make(map[string]*dbActor)
	c.dbMu.Unlock()

	for _, a := range actors {
		a.close()
	}
}

// databaseState is C4: per-connection, per-database cursor state. Once
// OpenDatabase has started its dbActor, it is owned exclusively by that
// actor's goroutine: only dbActor methods running there (actor.go, push.go,
// sendpayload.go) read or write its fields.
type databaseState struct {
	bundleSeqNo        int64 // -1 if none
	lastSeqNo          int64
	transactionLogSize int64
	init               bool
}
