package testutil

import (
	"context"
	"sync"

	"agency-backend/internal/events"
	"agency-backend/internal/models"
	"agency-backend/internal/notify"
)

type SentMail struct {
	Kind    string
	To      string
	OrderID string
	Reason  string
	Token   string
}

// Notifier records every email instead of sending it.
type Notifier struct {
	mu   sync.Mutex
	Err  error
	Sent []SentMail
}

func (n *Notifier) record(m SentMail) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.Sent = append(n.Sent, m)
	return nil
}

func (n *Notifier) SendVerification(_ context.Context, to, _, token string) error {
	return n.record(SentMail{Kind: "verification", To: to, Token: token})
}

func (n *Notifier) SendContact(_ context.Context, in notify.ContactMessage) error {
	return n.record(SentMail{Kind: "contact", To: in.Email, Reason: in.Subject})
}

func (n *Notifier) SendPaymentConfirmation(_ context.Context, user models.User, order models.Order) error {
	return n.record(SentMail{Kind: "payment_confirmation", To: user.Email, OrderID: order.ID.Hex()})
}

func (n *Notifier) SendPaymentFailure(_ context.Context, user models.User, order models.Order, reason string) error {
	return n.record(SentMail{Kind: "payment_failure", To: user.Email, OrderID: order.ID.Hex(), Reason: reason})
}

// Count returns how many mails of kind were recorded.
func (n *Notifier) Count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, m := range n.Sent {
		if m.Kind == kind {
			count++
		}
	}
	return count
}

func (n *Notifier) Last(kind string) (SentMail, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.Sent) - 1; i >= 0; i-- {
		if n.Sent[i].Kind == kind {
			return n.Sent[i], true
		}
	}
	return SentMail{}, false
}

// Publisher records published events.
type Publisher struct {
	mu     sync.Mutex
	Err    error
	Events []events.Event
}

func (p *Publisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Events = append(p.Events, event)
	return nil
}

func (p *Publisher) Close() error { return nil }

func (p *Publisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.Events))
	for _, e := range p.Events {
		out = append(out, e.Type)
	}
	return out
}
