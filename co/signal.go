// Copyright (c) 2021 The Aether developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package co

import (
	"sync"
)

// Waiter hands out the channel to wait on. The value read is true for a
// targeted wake-up and false for a broadcast.
type Waiter interface {
	C() <-chan bool
}

// Signal is a rendezvous for goroutines waiting on an event. Unlike
// sync.Cond it is channel based, so waits compose with select.
type Signal struct {
	l  sync.Mutex
	ch chan bool
}

func (s *Signal) init() {
	if s.ch == nil {
		s.ch = make(chan bool, 1)
	}
}

// Signal wakes one waiting goroutine.
func (s *Signal) Signal() {
	s.l.Lock()
	s.init()
	select {
	case s.ch <- true:
	default:
	}
	s.l.Unlock()
}

// Broadcast wakes all waiting goroutines.
func (s *Signal) Broadcast() {
	s.l.Lock()
	s.init()
	close(s.ch)
	s.ch = make(chan bool, 1)
	s.l.Unlock()
}

// NewWaiter creates a Waiter bound to this signal.
func (s *Signal) NewWaiter() Waiter {
	s.l.Lock()
	s.init()
	ref := s.ch
	s.l.Unlock()

	return waiterFunc(func() (ch <-chan bool) {
		ch = ref
		s.l.Lock()
		ref = s.ch
		s.l.Unlock()
		return
	})
}

type waiterFunc func() <-chan bool

func (w waiterFunc) C() <-chan bool {
	return w()
}
