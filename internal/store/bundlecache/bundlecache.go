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

// Package bundlecache wraps a BundleStore with an in-memory LRU cache,
// keeping recently-fetched compaction snapshots (C2) off the backing store:
// the same bundle gets re-sent to every device reopening or newly joining
// a database, so it is read far more often than it is written.
package bundlecache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vaultsync/syncserver"
)

// defaultSize bounds the number of distinct bundles held in memory at once.
const defaultSize = 256

// Cache wraps a syncserver.BundleStore, serving Get from an in-memory LRU
// cache where possible.
type Cache struct {
	delegate syncserver.BundleStore
	cache    *lru.Cache[cacheKey, []byte]
}

type cacheKey struct {
	databaseID  string
	bundleSeqNo int64
}

// New wraps delegate with an LRU of the given size. size of 0 selects
// defaultSize.
func New(delegate syncserver.BundleStore, size int) *Cache {
	if size <= 0 {
		size = defaultSize
	}
	c, err := lru.New[cacheKey, []byte](size)
	if err != nil {
		// Only returns an error for a non-positive size, which is excluded
		// above.
		panic(err)
	}
	return &Cache{delegate: delegate, cache: c}
}

// Get implements syncserver.BundleStore. A bundle is immutable once
// written, so a cache hit never needs to be revalidated against the
// delegate.
func (c *Cache) Get(ctx context.Context, databaseID string, bundleSeqNo int64) ([]byte, error) {
	key := cacheKey{databaseID, bundleSeqNo}
	if blob, ok := c.cache.Get(key); ok {
		return blob, nil
	}
	blob, err := c.delegate.Get(ctx, databaseID, bundleSeqNo)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, blob)
	return blob, nil
}
