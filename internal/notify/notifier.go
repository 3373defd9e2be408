package notify

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"agency-backend/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type Options struct {
	// Inbox receives contact form messages.
	Inbox           string
	AppURL          string
	FrontendURL     string
	Currency        string
	VerificationTTL time.Duration
}

type ContactMessage struct {
	Name    string
	Email   string
	Subject string
	Message string
}

// Notifier renders and sends the transactional emails.
type Notifier struct {
	sender Sender
	opts   Options
}

func NewNotifier(sender Sender, opts Options) *Notifier {
	return &Notifier{sender: sender, opts: opts}
}

func (n *Notifier) SendVerification(ctx context.Context, to, name, token string) error {
	link := n.opts.AppURL + "/auth/verify-email?token=" + url.QueryEscape(token)
	return n.send(ctx, "verification.html", Message{To: to, Subject: "Verify your email"}, map[string]any{
		"Name":     name,
		"Link":     template.URL(link),
		"ValidFor": n.opts.VerificationTTL.String(),
	})
}

func (n *Notifier) SendContact(ctx context.Context, in ContactMessage) error {
	return n.send(ctx, "contact.html", Message{
		To:      n.opts.Inbox,
		ReplyTo: in.Email,
		Subject: "New contact message: " + in.Subject,
	}, map[string]any{
		"Name":    in.Name,
		"Email":   in.Email,
		"Subject": in.Subject,
		"Lines":   strings.Split(in.Message, "\n"),
	})
}

func (n *Notifier) SendPaymentConfirmation(ctx context.Context, user models.User, order models.Order) error {
	return n.send(ctx, "payment_confirmation.html", Message{To: user.Email, Subject: "Payment confirmation"}, map[string]any{
		"Name":          user.FullName(),
		"OrderID":       order.ID.Hex(),
		"TotalAmount":   money(order.TotalAmount),
		"DepositAmount": money(order.DepositAmount),
		"Currency":      strings.ToUpper(n.opts.Currency),
		"Date":          order.UpdatedAt.Format("2006-01-02"),
	})
}

func (n *Notifier) SendPaymentFailure(ctx context.Context, user models.User, order models.Order, reason string) error {
	return n.send(ctx, "payment_failure.html", Message{To: user.Email, Subject: "About your order"}, map[string]any{
		"Name":     user.FullName(),
		"OrderID":  order.ID.Hex(),
		"Reason":   reason,
		"RetryURL": template.URL(n.opts.FrontendURL + "/orders/" + order.ID.Hex() + "/pay"),
	})
}

func (n *Notifier) send(ctx context.Context, name string, msg Message, data map[string]any) error {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, name, data); err != nil {
		return err
	}
	msg.HTML = body.String()
	return n.sender.Send(ctx, msg)
}

func money(amount float64) string {
	return decimal.NewFromFloat(amount).StringFixed(2)
}
