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

import "context"

// Socket is the contract the core needs from the websocket framing layer,
// which is out of scope for this package (see package doc). The core never
// imports a concrete websocket library; it only ever holds a Socket.
type Socket interface {
	// Send writes a single framed JSON message to the client.
	Send(ctx context.Context, msg any) error

	// Close closes the socket, delivering code and reason to the client
	// where the transport supports it (e.g. a websocket close frame).
	Close(code int, reason string) error
}

// Close codes. CloseClientAlreadyConnected is the only code the core ever
// uses; everything else about abnormal closure is the framing layer's
// business.
const CloseClientAlreadyConnected = 4001

// Wire route names.
const (
	RouteApplyTransactions     = "ApplyTransactions"
	RouteReceiveRequestForSeed = "ReceiveRequestForSeed"
	RouteReceiveSeed           = "ReceiveSeed"
)

// ApplyTransactionsMessage is the payload described in the external
// interfaces section: one logical push covering everything a client still
// needs for a single database.
type ApplyTransactionsMessage struct {
	Route          string             `json:"route"`
	DBID           string             `json:"dbId"`
	DBNameHash     string             `json:"dbNameHash,omitempty"`
	DBKey          string             `json:"dbKey,omitempty"`
	BundleSeqNo    *int64             `json:"bundleSeqNo,omitempty"`
	Bundle         []byte             `json:"bundle,omitempty"`
	TransactionLog []TransactionEntry `json:"transactionLog"`
	BuildBundle    bool               `json:"buildBundle,omitempty"`
}

// ReceiveRequestForSeedMessage is sent to validated devices when a new
// device asks to join the user's key ring.
type ReceiveRequestForSeedMessage struct {
	Route              string `json:"route"`
	RequesterPublicKey string `json:"requesterPublicKey"`
}

// ReceiveSeedMessage delivers an encrypted seed to the requesting device.
type ReceiveSeedMessage struct {
	Route           string `json:"route"`
	SenderPublicKey string `json:"senderPublicKey"`
	EncryptedSeed   []byte `json:"encryptedSeed"`
}
