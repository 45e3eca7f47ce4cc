// Package notify asks the notification service to email respondents.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNotification wraps every failure to hand a message over for delivery
var ErrNotification = errors.New("notification failed")

// Template identifies which email is sent
type Template int

const (
	EmailVerification Template = iota
	RequestPasswordChange
	ConfirmPasswordChange
)

func (t Template) String() string {
	switch t {
	case EmailVerification:
		return "email_verification"
	case RequestPasswordChange:
		return "request_password_change"
	case ConfirmPasswordChange:
		return "confirm_password_change"
	}
	return fmt.Sprintf("template(%d)", int(t))
}

// Templates maps each template to its id in the notification service
type Templates struct {
	EmailVerification     string
	RequestPasswordChange string
	ConfirmPasswordChange string
}

func (t Templates) id(template Template) string {
	switch template {
	case EmailVerification:
		return t.EmailVerification
	case RequestPasswordChange:
		return t.RequestPasswordChange
	case ConfirmPasswordChange:
		return t.ConfirmPasswordChange
	}
	return ""
}

// Message is one email request
type Message struct {
	TemplateID      string
	EmailAddress    string
	Personalisation map[string]string
	Reference       string
}

// Transport hands a message to the notification service
type Transport interface {
	Deliver(ctx context.Context, msg Message) error
}

// FailureCounter is told about every message that could not be handed over
type FailureCounter interface {
	IncrementNotificationFailures(template string)
}

type Gateway struct {
	transport Transport
	templates Templates
	logger    *slog.Logger
	failures  FailureCounter
}

type Option func(*Gateway)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

func WithFailureCounter(c FailureCounter) Option {
	return func(g *Gateway) {
		g.failures = c
	}
}

func NewGateway(transport Transport, templates Templates, opts ...Option) *Gateway {
	g := &Gateway{transport: transport, templates: templates, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Send requests an email from template to recipient. Personalisation and reference are optional.
func (g *Gateway) Send(ctx context.Context, template Template, recipient string, personalisation map[string]string, reference string) error {
	err := g.send(ctx, template, recipient, personalisation, reference)
	if err != nil {
		if g.failures != nil {
			g.failures.IncrementNotificationFailures(template.String())
		}
		return err
	}
	g.logger.InfoContext(ctx, "Notification sent", "template", template.String())
	return nil
}

func (g *Gateway) send(ctx context.Context, template Template, recipient string, personalisation map[string]string, reference string) error {
	id := g.templates.id(template)
	if id == "" {
		return fmt.Errorf("%w: no template id configured for %s", ErrNotification, template)
	}
	msg := Message{
		TemplateID:      id,
		EmailAddress:    recipient,
		Personalisation: personalisation,
		Reference:       reference,
	}
	if err := g.transport.Deliver(ctx, msg); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNotification, template, err)
	}
	return nil
}
