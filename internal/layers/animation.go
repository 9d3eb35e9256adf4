package layers

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Player advances a frame index on a fixed wall-clock interval. It is an
// explicitly owned timer: whoever builds a Player must Stop it before
// discarding it, so no ticker outlives a location or layer change. Each tick
// only swaps which already-rendered frame is on display; nothing is
// recomputed per frame.
type Player struct {
	clock    clockwork.Clock
	interval time.Duration
	frames   int
	onFrame  func(int)

	mu      sync.Mutex
	stop    chan struct{}
	stopped sync.WaitGroup
	frame   int
}

// NewPlayer creates a stopped player cycling through frames [0, frames).
// onFrame is called from the player's goroutine on every advance.
func NewPlayer(clock clockwork.Clock, interval time.Duration, frames int, onFrame func(int)) *Player {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Player{
		clock:    clock,
		interval: interval,
		frames:   frames,
		onFrame:  onFrame,
	}
}

// Start begins ticking. Starting a running player is a no-op.
func (p *Player) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil || p.frames <= 0 {
		return
	}

	stop := make(chan struct{})
	p.stop = stop
	p.stopped.Add(1)

	go func() {
		defer p.stopped.Done()
		ticker := p.clock.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				p.advance()
			}
		}
	}()
}

// Stop halts the ticker and waits for the player goroutine to exit.
// Stopping a stopped player is a no-op.
func (p *Player) Stop() {
	p.mu.Lock()
	if p.stop == nil {
		p.mu.Unlock()
		return
	}
	close(p.stop)
	p.stop = nil
	p.mu.Unlock()

	p.stopped.Wait()
}

// Frame returns the current frame index.
func (p *Player) Frame() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frame
}

// Seek jumps to a specific frame without waiting for the next tick.
func (p *Player) Seek(frame int) {
	p.mu.Lock()
	if p.frames > 0 {
		p.frame = ((frame % p.frames) + p.frames) % p.frames
	}
	f := p.frame
	p.mu.Unlock()

	if p.onFrame != nil {
		p.onFrame(f)
	}
}

func (p *Player) advance() {
	p.mu.Lock()
	p.frame = (p.frame + 1) % p.frames
	f := p.frame
	p.mu.Unlock()

	if p.onFrame != nil {
		p.onFrame(f)
	}
}
