package service

import (
	"context"
	"log"
	"time"
)

// Sweeper periodically reconciles active sessions in the background:
// expiring stale PENDING sessions and retrying materialization for PAID
// sessions whose order creation previously failed. It is the safety net
// that guarantees a confirmed payment is never silently dropped.
type Sweeper struct {
	engine   *ReconciliationEngine
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewSweeper creates a new Sweeper.
func NewSweeper(engine *ReconciliationEngine, interval time.Duration) *Sweeper {
	return &Sweeper{
		engine:   engine,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called.
func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		log.Printf("Reconciliation sweep running every %s", s.interval)
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), s.interval)
				s.engine.Sweep(ctx)
				cancel()
			}
		}
	}()
}

// Stop terminates the sweep loop and waits for the in-flight pass.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}
