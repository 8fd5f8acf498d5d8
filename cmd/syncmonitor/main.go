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

// syncmonitor is a small terminal dashboard (C16) for a running syncserver
// process. It has no registry of its own to poll when run standalone, so it
// stands up an empty one purely to demonstrate the dashboard; a process
// embedding Core should use internal/monitor directly against its own
// Registry rather than shelling out to this binary.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"k8s.io/klog/v2"

	"github.com/vaultsync/syncserver"
	"github.com/vaultsync/syncserver/internal/monitor"
)

var pollInterval = flag.Duration("poll_interval", 500*time.Millisecond, "How often to refresh the dashboard.")

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := monitor.New(syncserver.NewRegistry(), nil, *pollInterval)
	if err := c.Run(ctx); err != nil {
		klog.Exitf("syncmonitor: %v", err)
	}
}
