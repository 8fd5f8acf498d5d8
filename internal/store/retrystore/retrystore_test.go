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

package retrystore

import (
	"context"
	"errors"
	"testing"

	"github.com/vaultsync/syncserver"
)

// fakeTransactionLog fails with transientErr the first failUntil calls, then
// succeeds; condErr, if set, is always returned without being consumed by
// the failUntil counter.
type fakeTransactionLog struct {
	calls        int
	failUntil    int
	transientErr error
	condErr      error
}

func (f *fakeTransactionLog) Range(context.Context, string, int64, int) ([]syncserver.Transaction, error) {
	panic("not used")
}

func (f *fakeTransactionLog) ConditionalPut(context.Context, syncserver.Transaction) error {
	f.calls++
	if f.condErr != nil {
		return f.condErr
	}
	if f.calls <= f.failUntil {
		return f.transientErr
	}
	return nil
}

func TestTransactionLogRetriesTransientErrors(t *testing.T) {
	delegate := &fakeTransactionLog{failUntil: 2, transientErr: errors.New("connection reset")}
	tl := NewTransactionLog(delegate, 4)

	if err := tl.ConditionalPut(context.Background(), syncserver.Transaction{}); err != nil {
		t.Fatalf("ConditionalPut: %v, want nil after retries succeed", err)
	}
	if delegate.calls != 3 {
		t.Errorf("got %d calls, want 3 (2 failures + 1 success)", delegate.calls)
	}
}

func TestTransactionLogDoesNotRetryConditionViolation(t *testing.T) {
	delegate := &fakeTransactionLog{condErr: syncserver.ErrAlreadyExists}
	tl := NewTransactionLog(delegate, 4)

	err := tl.ConditionalPut(context.Background(), syncserver.Transaction{})
	if !errors.Is(err, syncserver.ErrAlreadyExists) {
		t.Fatalf("got %v, want ErrAlreadyExists", err)
	}
	if delegate.calls != 1 {
		t.Errorf("got %d calls, want 1 (no retries on a condition violation)", delegate.calls)
	}
}

func TestTransactionLogGivesUpAfterAttempts(t *testing.T) {
	delegate := &fakeTransactionLog{failUntil: 10, transientErr: errors.New("still down")}
	tl := NewTransactionLog(delegate, 3)

	err := tl.ConditionalPut(context.Background(), syncserver.Transaction{})
	if err == nil {
		t.Fatalf("ConditionalPut: got nil error, want failure after exhausting attempts")
	}
	if delegate.calls != 3 {
		t.Errorf("got %d calls, want 3 (attempts exhausted)", delegate.calls)
	}
}
