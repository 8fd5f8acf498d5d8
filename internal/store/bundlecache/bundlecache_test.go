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

package bundlecache

import (
	"context"
	"testing"

	"github.com/vaultsync/syncserver"
)

type fakeBundles struct {
	calls int
	blob  []byte
	err   error
}

func (f *fakeBundles) Get(context.Context, string, int64) ([]byte, error) {
	f.calls++
	return f.blob, f.err
}

func TestCacheServesRepeatGetsFromMemory(t *testing.T) {
	delegate := &fakeBundles{blob: []byte("bundle-blob")}
	cache := New(delegate, 0)

	for i := 0; i < 3; i++ {
		blob, err := cache.Get(context.Background(), "db-1", 5)
		if err != nil {
			t.Fatalf("Get #%d: %v", i, err)
		}
		if string(blob) != "bundle-blob" {
			t.Fatalf("Get #%d: got %q, want %q", i, blob, "bundle-blob")
		}
	}
	if delegate.calls != 1 {
		t.Errorf("got %d delegate calls, want 1 (later Gets served from cache)", delegate.calls)
	}
}

func TestCacheDoesNotCacheErrors(t *testing.T) {
	delegate := &fakeBundles{err: syncserver.ErrNotFound}
	cache := New(delegate, 0)

	for i := 0; i < 2; i++ {
		if _, err := cache.Get(context.Background(), "db-1", 5); err != syncserver.ErrNotFound {
			t.Fatalf("Get #%d: got %v, want ErrNotFound", i, err)
		}
	}
	if delegate.calls != 2 {
		t.Errorf("got %d delegate calls, want 2 (an error must not be cached)", delegate.calls)
	}
}

func TestCacheKeysByDatabaseAndBundleSeqNo(t *testing.T) {
	delegate := &fakeBundles{blob: []byte("blob")}
	cache := New(delegate, 0)

	if _, err := cache.Get(context.Background(), "db-1", 5); err != nil {
		t.Fatalf("Get(db-1, 5): %v", err)
	}
	if _, err := cache.Get(context.Background(), "db-1", 6); err != nil {
		t.Fatalf("Get(db-1, 6): %v", err)
	}
	if _, err := cache.Get(context.Background(), "db-2", 5); err != nil {
		t.Fatalf("Get(db-2, 5): %v", err)
	}
	if delegate.calls != 3 {
		t.Errorf("got %d delegate calls, want 3 (each key distinct)", delegate.calls)
	}
}
