package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"agency-backend/internal/models"
)

type recordingSender struct {
	sent []Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg Message) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func newTestNotifier(sender Sender) *Notifier {
	return NewNotifier(sender, Options{
		Inbox:           "hello@agency.test",
		AppURL:          "http://api.test",
		FrontendURL:     "http://front.test",
		Currency:        "eur",
		VerificationTTL: 24 * time.Hour,
	})
}

func TestSendVerificationEmbedsLink(t *testing.T) {
	sender := &recordingSender{}
	n := newTestNotifier(sender)

	require.NoError(t, n.SendVerification(context.Background(), "ada@example.com", "Ada L", "a.b.c"))

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "ada@example.com", msg.To)
	assert.Contains(t, msg.HTML, `href="http://api.test/auth/verify-email?token=a.b.c"`)
	assert.Contains(t, msg.HTML, "24h0m0s")
}

func TestSendContactEscapesAndGoesToInbox(t *testing.T) {
	sender := &recordingSender{}
	n := newTestNotifier(sender)

	err := n.SendContact(context.Background(), ContactMessage{
		Name:    "<b>Eve</b>",
		Email:   "eve@example.com",
		Subject: "Autre",
		Message: "line one\nline two",
	})
	require.NoError(t, err)

	msg := sender.sent[0]
	assert.Equal(t, "hello@agency.test", msg.To)
	assert.Equal(t, "eve@example.com", msg.ReplyTo)
	assert.Equal(t, "New contact message: Autre", msg.Subject)
	assert.Contains(t, msg.HTML, "&lt;b&gt;Eve&lt;/b&gt;")
	assert.Contains(t, msg.HTML, "line one<br>line two")
}

func TestPaymentEmails(t *testing.T) {
	sender := &recordingSender{}
	n := newTestNotifier(sender)
	user := models.User{Email: "ada@example.com", FirstName: "Ada", LastName: "L"}
	order := models.Order{ID: primitive.NewObjectID(), TotalAmount: 40, DepositAmount: 12.5, UpdatedAt: time.Now()}

	require.NoError(t, n.SendPaymentConfirmation(context.Background(), user, order))
	require.NoError(t, n.SendPaymentFailure(context.Background(), user, order, "Your card has expired"))

	require.Len(t, sender.sent, 2)
	assert.Contains(t, sender.sent[0].HTML, "40.00 EUR")
	assert.Contains(t, sender.sent[0].HTML, "12.50 EUR")
	assert.Contains(t, sender.sent[1].HTML, "Your card has expired")
	assert.Contains(t, sender.sent[1].HTML, "http://front.test/orders/"+order.ID.Hex()+"/pay")
}

func TestSenderErrorPropagates(t *testing.T) {
	boom := errors.New("smtp down")
	n := newTestNotifier(&recordingSender{err: boom})

	err := n.SendContact(context.Background(), ContactMessage{Name: "a", Email: "a@b.c", Subject: "Autre", Message: "hello there"})
	assert.ErrorIs(t, err, boom)
}
