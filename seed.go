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
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// seedExchangeTTL is the lifetime of a SeedExchange row before it is
// considered evicted, per spec.md §3 ("≈ 1 day").
const seedExchangeTTL = 24 * time.Hour

// OpenSeedRequest is the requester side of C8: the new device stores its
// own public key on this connection, marking it as having one outstanding
// request.
func (conn *Connection) OpenSeedRequest(ctx context.Context, requesterPublicKey string) error {
	conn.setRequesterPublicKey(requesterPublicKey)
	row := SeedExchangeRow{
		UserID:             conn.UserID,
		RequesterPublicKey: requesterPublicKey,
		ExpiresAt:          conn.core.opts.Now().Add(seedExchangeTTL),
	}
	if err := conn.core.SeedExchange.ConditionalPut(ctx, row); err != nil {
		return fmt.Errorf("OpenSeedRequest: %w", err)
	}
	return nil
}

// SendSeedRequest is the broadcaster side of C8: records requesterPublicKey
// on the origin connection, then fans out ReceiveRequestForSeed to every
// connection of userID (including the origin). A connection only actually
// forwards the message if it is key-validated — the origin, being the new
// unvalidated device, is always a no-op for itself.
func (core *Core) SendSeedRequest(ctx context.Context, userID, originConnectionID, requesterPublicKey string) {
	conns := core.Registry.connectionsFor(userID)

	for _, c := range conns {
		if c.ID == originConnectionID {
			c.setRequesterPublicKey(requesterPublicKey)
			break
		}
	}

	g, _ := errgroup.WithContext(ctx)
	for _, conn := range conns {
		conn := conn
		g.Go(func() error {
			broadcastSeedRequest(ctx, conn, requesterPublicKey)
			return nil
		})
	}
	_ = g.Wait()
}

// broadcastSeedRequest is the per-connection broadcaster named in §4.7: a
// no-op unless the connection is key-validated.
func broadcastSeedRequest(ctx context.Context, conn *Connection, requesterPublicKey string) {
	if !conn.isKeyValidated() {
		return
	}
	msg := ReceiveRequestForSeedMessage{
		Route:              RouteReceiveRequestForSeed,
		RequesterPublicKey: requesterPublicKey,
	}
	if err := conn.Socket.Send(ctx, msg); err != nil {
		klog.Warningf("SendSeedRequest(%s): send to connection %s: %v", conn.UserID, conn.ID, err)
	}
}

// SendSeed is the seed-delivery half of C8: fans out to every connection of
// userID; each connection forwards ReceiveSeed only if its own
// requesterPublicKey matches requesterPublicKey (i.e. it is the requester).
// Other sockets silently drop the message.
func (core *Core) SendSeed(ctx context.Context, userID, senderPublicKey, requesterPublicKey string, encryptedSeed []byte) {
	if err := core.SeedExchange.SetEncryptedSeed(ctx, userID, requesterPublicKey, encryptedSeed); err != nil {
		klog.Warningf("SendSeed(%s): persist encrypted seed: %v", userID, err)
	}

	conns := core.Registry.connectionsFor(userID)
	g, _ := errgroup.WithContext(ctx)
	for _, conn := range conns {
		conn := conn
		g.Go(func() error {
			if requesterPublicKey == "" || conn.getRequesterPublicKey() != requesterPublicKey {
				return nil
			}
			msg := ReceiveSeedMessage{
				Route:           RouteReceiveSeed,
				SenderPublicKey: senderPublicKey,
				EncryptedSeed:   encryptedSeed,
			}
			if err := conn.Socket.Send(ctx, msg); err != nil {
				klog.Warningf("SendSeed(%s): send to connection %s: %v", userID, conn.ID, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
