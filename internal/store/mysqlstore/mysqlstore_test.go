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

// Package mysqlstore's tests require a reachable MySQL database and are
// skipped (not failed) when one isn't available.
//
// Sample command to start a local MySQL database using Docker:
// $ docker run --name test-syncserver-mysql -p 3306:3306 -e MYSQL_ROOT_PASSWORD=root -e MYSQL_DATABASE=test_syncserver -d mysql
package mysqlstore

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"k8s.io/klog/v2"

	"github.com/vaultsync/syncserver"
)

var (
	mysqlURI            = flag.String("mysql_uri", "root:root@tcp(localhost:3306)/test_syncserver", "Connection string for a MySQL database")
	isMySQLTestOptional = flag.Bool("is_mysql_test_optional", true, "Whether an unreachable MySQL database skips these tests instead of failing them")

	testDB *sql.DB
)

func TestMain(m *testing.M) {
	klog.InitFlags(nil)
	flag.Parse()
	ctx := context.Background()

	db, err := sql.Open("mysql", *mysqlURI)
	if err != nil {
		if *isMySQLTestOptional {
			klog.Warning("MySQL not available, skipping all mysqlstore tests")
			return
		}
		klog.Fatalf("open mysql test db: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			klog.Warningf("close mysql test db: %v", err)
		}
	}()
	if err := db.PingContext(ctx); err != nil {
		if *isMySQLTestOptional {
			klog.Warning("MySQL not available, skipping all mysqlstore tests")
			return
		}
		klog.Fatalf("ping mysql test db: %v", err)
	}
	testDB = db

	if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS `transactions`, `bundles`, `seed_exchanges`"); err != nil {
		klog.Fatalf("drop tables: %v", err)
	}

	os.Exit(m.Run())
}

func requireTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if testDB == nil {
		t.Skip("no reachable MySQL test database; see package doc for how to start one")
	}
	return testDB
}

func TestTransactionLogConditionalPutRejectsCollision(t *testing.T) {
	ctx := context.Background()
	db := requireTestDB(t)
	log, err := NewTransactionLog(ctx, db)
	if err != nil {
		t.Fatalf("NewTransactionLog: %v", err)
	}

	tx := syncserver.Transaction{DatabaseID: "db-collision", SeqNo: 1, Command: syncserver.CommandInsert, CreationDate: time.Now()}
	if err := log.ConditionalPut(ctx, tx); err != nil {
		t.Fatalf("first ConditionalPut: %v", err)
	}
	if err := log.ConditionalPut(ctx, tx); !errors.Is(err, syncserver.ErrAlreadyExists) {
		t.Fatalf("second ConditionalPut: got %v, want ErrAlreadyExists", err)
	}
}

func TestTransactionLogRangeRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := requireTestDB(t)
	log, err := NewTransactionLog(ctx, db)
	if err != nil {
		t.Fatalf("NewTransactionLog: %v", err)
	}

	const databaseID = "db-roundtrip"
	want := syncserver.Transaction{
		DatabaseID:   databaseID,
		SeqNo:        1,
		Command:      syncserver.CommandBatchTransaction,
		Operations:   []syncserver.Operation{{Command: syncserver.CommandInsert, Key: "k1", Record: []byte("v1")}},
		CreationDate: time.Now().Truncate(time.Microsecond),
	}
	if err := log.ConditionalPut(ctx, want); err != nil {
		t.Fatalf("ConditionalPut: %v", err)
	}

	got, err := log.Range(ctx, databaseID, 0, 10)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d rows, want 1", len(got))
	}
	if got[0].SeqNo != want.SeqNo || got[0].Command != want.Command {
		t.Errorf("got %+v, want SeqNo=%d Command=%s", got[0], want.SeqNo, want.Command)
	}
	if len(got[0].Operations) != 1 || got[0].Operations[0].Key != "k1" {
		t.Errorf("got Operations=%+v, want one operation keyed k1", got[0].Operations)
	}
}

func TestSeedExchangeConditionalPutSweepsExpired(t *testing.T) {
	ctx := context.Background()
	db := requireTestDB(t)

	now := time.Now().Truncate(time.Microsecond)
	store, err := NewSeedExchange(ctx, db, func() time.Time { return now })
	if err != nil {
		t.Fatalf("NewSeedExchange: %v", err)
	}

	row := syncserver.SeedExchangeRow{UserID: "user-sweep", RequesterPublicKey: "pub-1", ExpiresAt: now.Add(-time.Minute)}
	if err := store.ConditionalPut(ctx, row); err != nil {
		t.Fatalf("ConditionalPut (expired row): %v", err)
	}

	row.ExpiresAt = now.Add(time.Hour)
	if err := store.ConditionalPut(ctx, row); err != nil {
		t.Fatalf("ConditionalPut (fresh row at same key, after sweep): %v", err)
	}

	got, err := store.Get(ctx, "user-sweep", "pub-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.ExpiresAt.Equal(row.ExpiresAt) {
		t.Errorf("got ExpiresAt=%v, want %v", got.ExpiresAt, row.ExpiresAt)
	}
}
