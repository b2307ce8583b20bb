// Copyright (c) 2025 The Pura Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package privatepay

import (
	"math/rand"
	"sync"
	"time"
)

// Manager drives the 1Hz background work a running PrivatePay
// participant needs regardless of role: pruning expired queue
// advertisements and broadcast records, and ticking whichever of
// Coordinator/Client is active. Exactly one of Coordinator or Client is
// normally set; a process that is both a masternode and a mixing wallet
// may set both.
type Manager struct {
	Coordinator *Coordinator
	Client      *Client
	Chain       ChainClient

	tickCount     int
	nextAutoDenom int

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewManager returns a Manager over the given collaborators. Either
// coordinator or client may be nil; a process running both prunes both
// sides' queue/PPTX maps independently, since each owns its own store.
func NewManager(coordinator *Coordinator, client *Client, chain ChainClient) *Manager {
	return &Manager{
		Coordinator:   coordinator,
		Client:        client,
		Chain:         chain,
		nextAutoDenom: AutoDenominateMinTicks,
	}
}

// Start launches the manager's background tick loop. Calling Start twice
// without an intervening Stop is a programming error.
func (m *Manager) Start() {
	m.quit = make(chan struct{})
	m.wg.Add(1)
	go m.run()
}

// Stop signals the tick loop to exit and waits for it to do so.
func (m *Manager) Stop() {
	close(m.quit)
	m.wg.Wait()
}

func (m *Manager) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.quit:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Manager) tick() {
	if m.Coordinator != nil {
		m.Coordinator.CheckTimeout()
		m.Coordinator.CheckForCompleteQueue()
		m.Coordinator.Queues.Prune(time.Now())
		if m.Chain != nil {
			m.Coordinator.Pptx.Prune(m.Chain.BestHeight())
		}
	}
	if m.Client != nil {
		m.Client.CheckTimeout()
		m.Client.CheckPool()
		m.Client.Queues.Prune(time.Now())
		if m.Chain != nil {
			m.Client.Pptx.Prune(m.Chain.BestHeight())
		}

		m.tickCount++
		if m.tickCount >= m.nextAutoDenom {
			m.tickCount = 0
			m.nextAutoDenom = AutoDenominateMinTicks + rand.Intn(AutoDenominateMaxTicks-AutoDenominateMinTicks)
			m.Client.DoAutomaticDenominating()
		}
	}
}
