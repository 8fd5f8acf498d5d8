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

// Package monitor implements the operator dashboard (C16): a tview terminal
// UI that polls a Registry's stats snapshot and a delivered-transaction
// counter, smoothing the latter into a qps readout. It holds no protocol
// logic of its own.
package monitor

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	movingaverage "github.com/RobinUS2/golang-moving-average"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"k8s.io/klog/v2"

	"github.com/vaultsync/syncserver"
)

// Source is the subset of Registry a monitor needs: a read-only stats
// snapshot.
type Source interface {
	Stats() syncserver.Stats
}

// DeliveryCounter reports the cumulative number of transactions delivered
// so far. nil is valid and simply reports a flat 0.
type DeliveryCounter func() uint64

// Controller drives the dashboard's tview.Application.
type Controller struct {
	source     Source
	delivered  DeliveryCounter
	pollEvery  time.Duration
	app        *tview.Application
	statusView *tview.TextView
	logView    *tview.TextView
	helpView   *tview.TextView
}

// New constructs a Controller polling source every pollEvery.
func New(source Source, delivered DeliveryCounter, pollEvery time.Duration) *Controller {
	c := &Controller{
		source:    source,
		delivered: delivered,
		pollEvery: pollEvery,
		app:       tview.NewApplication(),
	}
	grid := tview.NewGrid()
	grid.SetRows(4, 0, 2).SetColumns(0).SetBorders(true)

	statusView := tview.NewTextView()
	grid.AddItem(statusView, 0, 0, 1, 1, 0, 0, false)
	c.statusView = statusView

	logView := tview.NewTextView()
	logView.ScrollToEnd()
	logView.SetMaxLines(10000)
	grid.AddItem(logView, 1, 0, 1, 1, 0, 0, false)
	c.logView = logView

	helpView := tview.NewTextView()
	helpView.SetText("ctrl-c to quit")
	grid.AddItem(helpView, 2, 0, 1, 1, 0, 0, false)
	c.helpView = helpView

	c.app.SetRoot(grid, true)
	return c
}

// Run redirects klog into the dashboard's log panel and blocks until ctx is
// cancelled or the user quits with ctrl-c.
func (c *Controller) Run(ctx context.Context) error {
	if err := flag.Set("logtostderr", "false"); err != nil {
		return fmt.Errorf("set logtostderr: %w", err)
	}
	if err := flag.Set("alsologtostderr", "false"); err != nil {
		return fmt.Errorf("set alsologtostderr: %w", err)
	}
	klog.SetOutput(c.logView)

	go c.updateLoop(ctx)

	c.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC {
			c.app.Stop()
			return nil
		}
		return event
	})

	go func() {
		<-ctx.Done()
		c.app.Stop()
	}()

	return c.app.Run()
}

func (c *Controller) updateLoop(ctx context.Context) {
	ticker := time.NewTicker(c.pollEvery)
	defer ticker.Stop()

	maSlots := int((30 * time.Second) / c.pollEvery)
	if maSlots < 1 {
		maSlots = 1
	}
	rate := movingaverage.New(maSlots)
	var lastDelivered uint64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := c.source.Stats()

			var delivered uint64
			if c.delivered != nil {
				delivered = c.delivered()
			}
			rate.Add(float64(delivered - lastDelivered))
			lastDelivered = delivered
			qps := rate.Avg() * float64(time.Second/c.pollEvery)

			lines := []string{
				fmt.Sprintf("Users: %d", stats.Users),
				fmt.Sprintf("Connections: %d", stats.Connections),
				fmt.Sprintf("Delivered: %d (Δ %.1f/s over %ds)", delivered, qps, maSlots*int(c.pollEvery)/int(time.Second)),
			}
			c.statusView.SetText(strings.Join(lines, "\n"))
			c.app.Draw()
		}
	}
}
