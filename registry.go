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

	"k8s.io/klog/v2"
)

// Registry is C9: the process-wide index of live connections. Per the
// design notes, it is an explicitly constructed value owned by the server
// entry point and threaded into the fan-out dispatcher and accept loop,
// never a package-level singleton.
type Registry struct {
	mu            sync.RWMutex
	sockets       map[string]map[string]*Connection // userID -> connID -> Connection
	uniqueClients map[string]bool
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sockets:       make(map[string]map[string]*Connection),
		uniqueClients: make(map[string]bool),
	}
}

// Register implements the register(userId, socket, clientId) operation of
// §4.1. If clientID is already connected, the socket is closed with
// CloseClientAlreadyConnected and (nil, false) is returned.
func (r *Registry) Register(core *Core, userID, clientID string, socket Socket) (*Connection, bool) {
	r.mu.Lock()
	if r.uniqueClients[clientID] {
		r.mu.Unlock()
		klog.Warningf("registry: rejecting duplicate clientId %q for user %q", clientID, userID)
		if err := socket.Close(CloseClientAlreadyConnected, ErrClientAlreadyConnected.Error()); err != nil {
			klog.Warningf("registry: closing rejected socket: %v", err)
		}
		return nil, false
	}
	r.uniqueClients[clientID] = true

	conn := newConnection(core, userID, clientID, socket)
	byConn, ok := r.sockets[userID]
	if !ok {
		byConn = make(map[string]*Connection)
		r.sockets[userID] = byConn
	}
	byConn[conn.ID] = conn
	r.mu.Unlock()

	return conn, true
}

// Close implements close(conn) of §4.1: idempotent removal of conn from
// both indexes, and shutdown of its per-database actors.
func (r *Registry) Close(conn *Connection) {
	r.mu.Lock()
	if byConn, ok := r.sockets[conn.UserID]; ok {
		delete(byConn, conn.ID)
		if len(byConn) == 0 {
			delete(r.sockets, conn.UserID)
		}
	}
	delete(r.uniqueClients, conn.ClientID)
	r.mu.Unlock()

	conn.closeDatabases()
}

// connectionsFor returns a snapshot slice of the connections currently
// registered for userID. Missing users yield a nil slice, which callers can
// still range over unconditionally.
func (r *Registry) connectionsFor(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byConn, ok := r.sockets[userID]
	if !ok {
		return nil
	}
	out := make([]*Connection, 0, len(byConn))
	for _, c := range byConn {
		out = append(out, c)
	}
	return out
}

// Stats is a point-in-time snapshot of registry occupancy, used by the
// operator monitor (C16). It takes no locks the caller needs to worry
// about and is safe to poll frequently.
type Stats struct {
	Users       int
	Connections int
}

// Stats returns a snapshot of current registry occupancy.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Stats{Users: len(r.sockets)}
	for _, byConn := range r.sockets {
		s.Connections += len(byConn)
	}
	return s
}
