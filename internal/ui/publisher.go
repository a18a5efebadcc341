package ui

import (
	"context"
	"sync"

	"github.com/abelbrown/livefeed/internal/controller"
	tea "github.com/charmbracelet/bubbletea"
)

// Publisher forwards controller Views to a Bubble Tea program. Publish never
// blocks: views published while the program is busy collapse into the latest.
type Publisher struct {
	send   func(tea.Msg)
	mu     sync.Mutex
	latest *controller.View
	wake   chan struct{}
}

// NewPublisher creates a Publisher delivering through send, typically
// (*tea.Program).Send.
func NewPublisher(send func(tea.Msg)) *Publisher {
	return &Publisher{send: send, wake: make(chan struct{}, 1)}
}

// Publish implements controller.Publisher.
func (p *Publisher) Publish(v controller.View) {
	p.mu.Lock()
	p.latest = &v
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run delivers views until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
			p.mu.Lock()
			v := p.latest
			p.latest = nil
			p.mu.Unlock()
			if v != nil {
				p.send(FeedUpdated{View: *v})
			}
		}
	}
}
