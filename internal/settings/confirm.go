package settings

import (
	"fmt"
	"sync"

	"github.com/kalambet/wterm/internal/locale"
)

// confirm sends c to the peer. The acknowledgement is handled exactly once
// even if the transport invokes the callback repeatedly.
func (s *Store) confirm(c Confirmation) {
	s.inflight.add()
	var once sync.Once
	s.deps.Transport.Send(EventName(c.Key), c.Value, func(ack int) {
		once.Do(func() {
			defer s.inflight.done()
			s.resolve(c, ack)
		})
	})
}

// resolve applies the peer's answer to c. Anything but AckOK restores
// c.Previous and re-runs the change dispatch for c.Key.
func (s *Store) resolve(c Confirmation, ack int) {
	if s.deps.Recorder != nil {
		if err := s.deps.Recorder.RecordConfirmation(c.ID, c.Key, c.Value, c.Previous, ack); err != nil {
			s.logger.Warn("settings: recording confirmation failed", "id", c.ID, "error", err)
		}
	}

	if ack == AckOK {
		s.logger.Debug("settings: remote confirmed", "key", c.Key, "id", c.ID)
		return
	}

	s.mu.Lock()
	s.state[c.Key] = c.Previous
	s.onUpdate(keySet(c.Key))
	notice := s.deps.Locale.Get(locale.ConfRollback, c.Key, fmt.Sprintf("%q", fmt.Sprint(c.Previous)))
	s.mu.Unlock()

	s.logger.Warn("settings: remote rejected write, rolled back",
		"key", c.Key, "id", c.ID, "ack", ack, "restored", c.Previous)
	if s.deps.Rollback != nil {
		s.deps.Rollback(notice)
	}
}

// pending counts unresolved confirmations and signals when none are left.
type pending struct {
	mu   sync.Mutex
	n    int
	zero chan struct{}
}

func (p *pending) add() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.n == 0 {
		p.zero = make(chan struct{})
	}
	p.n++
}

func (p *pending) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n--
	if p.n == 0 {
		close(p.zero)
	}
}

func (p *pending) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}

var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

func (p *pending) idle() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.n == 0 {
		return closedChan
	}
	return p.zero
}
