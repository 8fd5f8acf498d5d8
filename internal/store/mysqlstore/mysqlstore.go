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

// Package mysqlstore is a MySQL-backed implementation of the store
// contracts (C12): TransactionLogStore, BundleStore, and SeedExchangeStore.
//
// The schema leans on MySQL itself for the conditional-write semantics C1
// and C3 require: the composite primary key on (database_id, sequence_no)
// (respectively (user_id, requester_public_key)) is the condition. An
// INSERT that collides surfaces driver error 1062 (duplicate key), which
// this package maps to syncserver.ErrAlreadyExists rather than retrying or
// papering over it — the caller decides what a collision means.
package mysqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"k8s.io/klog/v2"

	"github.com/vaultsync/syncserver"
)

const mysqlDuplicateEntry = 1062

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	database_id   VARCHAR(190)  NOT NULL,
	sequence_no   BIGINT        NOT NULL,
	command       VARCHAR(32)   NOT NULL,
	` + "`key`" + `         VARCHAR(512)  NOT NULL DEFAULT '',
	record        LONGBLOB,
	operations    LONGBLOB,
	creation_date DATETIME(6)   NOT NULL,
	PRIMARY KEY (database_id, sequence_no)
) ENGINE=InnoDB;

CREATE TABLE IF NOT EXISTS bundles (
	database_id   VARCHAR(190) NOT NULL,
	bundle_seq_no BIGINT       NOT NULL,
	blob          LONGBLOB     NOT NULL,
	PRIMARY KEY (database_id, bundle_seq_no)
) ENGINE=InnoDB;

CREATE TABLE IF NOT EXISTS seed_exchanges (
	user_id              VARCHAR(190) NOT NULL,
	requester_public_key VARCHAR(190) NOT NULL,
	encrypted_seed       LONGBLOB,
	expires_at           DATETIME(6)  NOT NULL,
	PRIMARY KEY (user_id, requester_public_key)
) ENGINE=InnoDB;
`

const (
	selectTransactionsSQL = "SELECT `sequence_no`, `command`, `key`, `record`, `operations`, `creation_date` " +
		"FROM `transactions` WHERE `database_id` = ? AND `sequence_no` > ? ORDER BY `sequence_no` ASC LIMIT ?"
	insertTransactionSQL = "INSERT INTO `transactions` " +
		"(`database_id`, `sequence_no`, `command`, `key`, `record`, `operations`, `creation_date`) VALUES (?, ?, ?, ?, ?, ?, ?)"
	selectBundleSQL = "SELECT `blob` FROM `bundles` WHERE `database_id` = ? AND `bundle_seq_no` = ?"

	insertSeedExchangeSQL = "INSERT INTO `seed_exchanges` " +
		"(`user_id`, `requester_public_key`, `encrypted_seed`, `expires_at`) VALUES (?, ?, ?, ?)"
	selectSeedExchangeSQL = "SELECT `encrypted_seed`, `expires_at` FROM `seed_exchanges` " +
		"WHERE `user_id` = ? AND `requester_public_key` = ? AND `expires_at` > ?"
	updateSeedExchangeSQL = "UPDATE `seed_exchanges` SET `encrypted_seed` = ? " +
		"WHERE `user_id` = ? AND `requester_public_key` = ? AND `expires_at` > ?"
	deleteSeedExchangeSQL         = "DELETE FROM `seed_exchanges` WHERE `user_id` = ? AND `requester_public_key` = ?"
	deleteExpiredSeedExchangesSQL = "DELETE FROM `seed_exchanges` WHERE `expires_at` <= ?"
)

// TransactionLog is a MySQL-backed TransactionLogStore.
type TransactionLog struct {
	db *sql.DB
}

// NewTransactionLog wraps db, creating the transactions table if absent.
func NewTransactionLog(ctx context.Context, db *sql.DB) (*TransactionLog, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("mysqlstore: init schema: %w", err)
	}
	return &TransactionLog{db: db}, nil
}

// Range implements syncserver.TransactionLogStore.
func (s *TransactionLog) Range(ctx context.Context, databaseID string, after int64, limit int) ([]syncserver.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, selectTransactionsSQL, databaseID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore: range: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			klog.Warningf("mysqlstore: range: close rows: %v", err)
		}
	}()

	var out []syncserver.Transaction
	for rows.Next() {
		var (
			t          syncserver.Transaction
			key        string
			record     []byte
			operations []byte
		)
		if err := rows.Scan(&t.SeqNo, &t.Command, &key, &record, &operations, &t.CreationDate); err != nil {
			return nil, fmt.Errorf("mysqlstore: range: scan: %w", err)
		}
		t.DatabaseID = databaseID
		t.Key = key
		t.Record = record
		if len(operations) > 0 {
			if err := unmarshalOperations(operations, &t.Operations); err != nil {
				return nil, fmt.Errorf("mysqlstore: range: decode operations at seq %d: %w", t.SeqNo, err)
			}
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mysqlstore: range: %w", err)
	}
	return out, nil
}

// ConditionalPut implements syncserver.TransactionLogStore. The primary key
// on (database_id, sequence_no) is the condition: a duplicate-key error is
// translated to ErrAlreadyExists, everything else is surfaced as-is.
func (s *TransactionLog) ConditionalPut(ctx context.Context, tx syncserver.Transaction) error {
	operations, err := marshalOperations(tx.Operations)
	if err != nil {
		return fmt.Errorf("mysqlstore: conditional put: encode operations: %w", err)
	}
	_, err = s.db.ExecContext(ctx, insertTransactionSQL,
		tx.DatabaseID, tx.SeqNo, tx.Command, tx.Key, tx.Record, operations, tx.CreationDate)
	if isDuplicateEntry(err) {
		return syncserver.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("mysqlstore: conditional put: %w", err)
	}
	return nil
}

// Bundles is a MySQL-backed BundleStore.
type Bundles struct {
	db *sql.DB
}

// NewBundles wraps db, creating the bundles table if absent.
func NewBundles(ctx context.Context, db *sql.DB) (*Bundles, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("mysqlstore: init schema: %w", err)
	}
	return &Bundles{db: db}, nil
}

// Get implements syncserver.BundleStore.
func (b *Bundles) Get(ctx context.Context, databaseID string, bundleSeqNo int64) ([]byte, error) {
	row := b.db.QueryRowContext(ctx, selectBundleSQL, databaseID, bundleSeqNo)
	var blob []byte
	if err := row.Scan(&blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, syncserver.ErrNotFound
		}
		return nil, fmt.Errorf("mysqlstore: get bundle: %w", err)
	}
	return blob, nil
}

// SeedExchange is a MySQL-backed SeedExchangeStore with a lazily-swept TTL:
// expired rows are excluded from reads and opportunistically deleted, there
// is no background sweeper.
type SeedExchange struct {
	db  *sql.DB
	now func() time.Time
}

// NewSeedExchange wraps db, creating the seed_exchanges table if absent.
// now defaults to time.Now when nil.
func NewSeedExchange(ctx context.Context, db *sql.DB, now func() time.Time) (*SeedExchange, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("mysqlstore: init schema: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	return &SeedExchange{db: db, now: now}, nil
}

// ConditionalPut implements syncserver.SeedExchangeStore. It first sweeps
// any expired row occupying the same primary key out of the way, so that a
// new request from the same (user, device) pair isn't blocked by a stale
// exchange nobody ever completed.
func (s *SeedExchange) ConditionalPut(ctx context.Context, row syncserver.SeedExchangeRow) error {
	now := s.now()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM `seed_exchanges` WHERE `user_id` = ? AND `requester_public_key` = ? AND `expires_at` <= ?",
		row.UserID, row.RequesterPublicKey, now); err != nil {
		return fmt.Errorf("mysqlstore: conditional put: sweep expired: %w", err)
	}

	_, err := s.db.ExecContext(ctx, insertSeedExchangeSQL, row.UserID, row.RequesterPublicKey, row.EncryptedSeed, row.ExpiresAt)
	if isDuplicateEntry(err) {
		return syncserver.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("mysqlstore: conditional put: %w", err)
	}
	return nil
}

// Get implements syncserver.SeedExchangeStore.
func (s *SeedExchange) Get(ctx context.Context, userID, requesterPublicKey string) (syncserver.SeedExchangeRow, error) {
	row := s.db.QueryRowContext(ctx, selectSeedExchangeSQL, userID, requesterPublicKey, s.now())
	out := syncserver.SeedExchangeRow{UserID: userID, RequesterPublicKey: requesterPublicKey}
	if err := row.Scan(&out.EncryptedSeed, &out.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return syncserver.SeedExchangeRow{}, syncserver.ErrNotFound
		}
		return syncserver.SeedExchangeRow{}, fmt.Errorf("mysqlstore: get seed exchange: %w", err)
	}
	return out, nil
}

// SetEncryptedSeed implements syncserver.SeedExchangeStore.
func (s *SeedExchange) SetEncryptedSeed(ctx context.Context, userID, requesterPublicKey string, encryptedSeed []byte) error {
	res, err := s.db.ExecContext(ctx, updateSeedExchangeSQL, encryptedSeed, userID, requesterPublicKey, s.now())
	if err != nil {
		return fmt.Errorf("mysqlstore: set encrypted seed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mysqlstore: set encrypted seed: rows affected: %w", err)
	}
	if n == 0 {
		return syncserver.ErrNotFound
	}
	return nil
}

// Delete implements syncserver.SeedExchangeStore.
func (s *SeedExchange) Delete(ctx context.Context, userID, requesterPublicKey string) error {
	if _, err := s.db.ExecContext(ctx, deleteSeedExchangeSQL, userID, requesterPublicKey); err != nil {
		return fmt.Errorf("mysqlstore: delete seed exchange: %w", err)
	}
	return nil
}

// SweepExpired deletes every seed exchange row past its TTL. It is safe to
// call periodically from a background goroutine; ConditionalPut also sweeps
// the specific row it's about to contest, so this is only needed to bound
// the table's overall size.
func (s *SeedExchange) SweepExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, deleteExpiredSeedExchangesSQL, s.now())
	if err != nil {
		return 0, fmt.Errorf("mysqlstore: sweep expired: %w", err)
	}
	return res.RowsAffected()
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

// marshalOperations encodes a BatchTransaction's operations for storage in
// the operations LONGBLOB column. An empty slice is stored as nil rather
// than "[]", so that Range's len(operations) > 0 check round-trips cleanly.
func marshalOperations(ops []syncserver.Operation) ([]byte, error) {
	if len(ops) == 0 {
		return nil, nil
	}
	return json.Marshal(ops)
}

func unmarshalOperations(b []byte, out *[]syncserver.Operation) error {
	return json.Unmarshal(b, out)
}
