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

// Package syncserver implements the realtime fan-out core of an
// end-to-end-encrypted per-user key-value synchronization service.
//
// Clients connect over a persistent bidirectional channel (a Socket).
// The core streams ordered per-database transaction logs to every
// connected device belonging to the same user, issues bundling hints
// to compact those logs, and mediates a device-to-device seed-exchange
// protocol by which a new device obtains the user's root secret from an
// already-authorized device without the server ever seeing it.
//
// The package never decrypts, validates, or generates database
// contents, and it never holds a user's root secret in memory.
package syncserver
