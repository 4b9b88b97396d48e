// Package scheduler runs the recurring expiry sweep.
package scheduler

import (
	"log"
	"time"
)

// Sweeper - What a tick invokes, satisfied by requests.Manager
type Sweeper interface {
	ExpireStale(now time.Time) error
}

// Scheduler - Fixed-period sweep loop. The first tick waits for the
// platform connection to be ready; a panic inside a tick never stops
// the loop.
type Scheduler struct {
	sweep  Sweeper
	period time.Duration

	stop chan struct{}
	done chan struct{}
}

func New(period time.Duration, sweep Sweeper) *Scheduler {
	if period <= 0 {
		period = 10 * time.Minute
	}
	return &Scheduler{
		sweep:  sweep,
		period: period,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start - Launch the loop. ready gates the first tick; closing it
// signals the platform connection is up.
func (s *Scheduler) Start(ready <-chan struct{}) {
	go s.run(ready)
}

// Stop - Halt the loop and wait for it to exit
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) run(ready <-chan struct{}) {
	defer close(s.done)

	select {
	case <-ready:
	case <-s.stop:
		return
	}

	// First sweep right after the connection is up, then every period
	s.tick()

	t := time.NewTicker(s.period)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.tick()
		case <-s.stop:
			return
		}
	}
}

func (s *Scheduler) tick() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Scheduler] sweep panic: %v", r)
		}
	}()

	log.Print("[Scheduler] checking for expired requests...")
	if err := s.sweep.ExpireStale(time.Now()); err != nil {
		log.Printf("[Scheduler] sweep failed: %v", err)
	}
}
