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

// syncserver wires a Core (registry, stores, push pipeline) from flags and
// waits for a shutdown signal. It runs no accept loop: websocket framing is
// out of scope for this module (see doc.go). The Wired value built by wire
// holds what a transport layer drives once a handshake has produced a
// userID, clientID, and Socket (Core.Connect and friends).
package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"k8s.io/klog/v2"

	"github.com/vaultsync/syncserver"
	"github.com/vaultsync/syncserver/internal/notify"
	"github.com/vaultsync/syncserver/internal/store/bundlecache"
	"github.com/vaultsync/syncserver/internal/store/memstore"
	"github.com/vaultsync/syncserver/internal/store/mysqlstore"
	"github.com/vaultsync/syncserver/internal/store/retrystore"
)

var (
	backend      = flag.String("backend", "memory", "Store backend: \"memory\" or \"mysql\".")
	mysqlDSN     = flag.String("mysql_dsn", "", "DSN for the mysql backend, e.g. user:pass@tcp(host:3306)/dbname.")
	rollbackAge  = flag.Duration("rollback_threshold", syncserver.DefaultRollbackThreshold, "Age at which an unresolved log gap is rolled back instead of awaited.")
	bundleTrig   = flag.Int("bundle_trigger_bytes", syncserver.DefaultBundleTrigger, "Accumulated transaction-log size, in bytes, that triggers a bundling hint.")
	pageSize     = flag.Int("page_size", syncserver.DefaultPageSize, "Transactions fetched per TransactionLogStore.Range call.")
	retryAttempt = flag.Uint("store_retry_attempts", 4, "Attempts for transient store errors before giving up.")
	bundleCache  = flag.Int("bundle_cache_size", 256, "Number of distinct bundle blobs kept in the in-memory LRU cache.")
	coalesceWin  = flag.Duration("notify_coalesce_window", 50*time.Millisecond, "Window over which commit notifications for the same database are coalesced.")
)

// Wired bundles together the constructed Core and its coalescing notifier,
// ready for a transport layer to drive.
type Wired struct {
	Core    *syncserver.Core
	Notify  *notify.Coalescer
	Closers []func(context.Context) error
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := wire(ctx)
	if err != nil {
		klog.Exitf("wire: %v", err)
	}

	klog.Infof("syncserver: backend=%s rollback_threshold=%s bundle_trigger_bytes=%d page_size=%d",
		*backend, *rollbackAge, *bundleTrig, *pageSize)
	klog.Info("syncserver: core wired; awaiting shutdown (transport integration is external to this module)")

	<-ctx.Done()
	klog.Info("syncserver: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, closer := range w.Closers {
		if err := closer(shutdownCtx); err != nil {
			klog.Warningf("syncserver: shutdown: %v", err)
		}
	}
}

func wire(ctx context.Context) (*Wired, error) {
	transactions, bundles, seedExchange, closers, err := buildStores(ctx)
	if err != nil {
		return nil, err
	}

	transactions = retrystore.NewTransactionLog(transactions, *retryAttempt)
	bundles = bundlecache.New(retrystore.NewBundles(bundles, *retryAttempt), *bundleCache)
	seedExchange = retrystore.NewSeedExchange(seedExchange, *retryAttempt)

	registry := syncserver.NewRegistry()
	core := syncserver.NewCore(registry, transactions, bundles, seedExchange,
		syncserver.WithRollbackThreshold(*rollbackAge),
		syncserver.WithBundleTrigger(*bundleTrig),
		syncserver.WithPageSize(*pageSize),
	)

	coalescer := notify.New(ctx, *coalesceWin, 256, func(ctx context.Context, tx syncserver.Transaction, userID string) {
		core.OnTransactionCommitted(ctx, tx, userID)
	})
	closers = append(closers, coalescer.Close)

	return &Wired{Core: core, Notify: coalescer, Closers: closers}, nil
}

func buildStores(ctx context.Context) (syncserver.TransactionLogStore, syncserver.BundleStore, syncserver.SeedExchangeStore, []func(context.Context) error, error) {
	switch *backend {
	case "memory":
		return memstore.NewTransactionLog(), memstore.NewBundles(), memstore.NewSeedExchange(nil), nil, nil
	case "mysql":
		if *mysqlDSN == "" {
			klog.Exit("-mysql_dsn is required when -backend=mysql")
		}
		db, err := sql.Open("mysql", *mysqlDSN)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		transactions, err := mysqlstore.NewTransactionLog(ctx, db)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		bundles, err := mysqlstore.NewBundles(ctx, db)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		seedExchange, err := mysqlstore.NewSeedExchange(ctx, db, nil)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		closers := []func(context.Context) error{func(context.Context) error { return db.Close() }}
		return transactions, bundles, seedExchange, closers, nil
	default:
		klog.Exitf("unknown -backend %q (want \"memory\" or \"mysql\")", *backend)
		return nil, nil, nil, nil, nil
	}
}
