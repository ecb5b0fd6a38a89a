// Package notifier delivers one-time codes and account notices to users.
// Email goes out through SESv2; when SES is not configured (local dev) the
// notifier degrades to logging the rendered message, and the API layer may
// echo the code in dev responses instead.
package notifier

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/osteele/liquid"

	"github.com/rivio/ranking-server/internal/domain"
)

// Sender delivers rendered messages. The SES implementation is the only real
// one; tests swap in a capture double.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody, textBody string) error
}

// Notifier renders templates and routes them by contact kind.
type Notifier struct {
	sender    Sender
	from      string
	appName   string
	engine    *liquid.Engine
	templates map[string]template
}

type template struct {
	subject string
	html    string
	text    string
}

// Config holds SES settings. An empty From disables real delivery.
type Config struct {
	Region  string
	From    string
	AppName string
}

// New builds a Notifier. When SES cannot be configured the notifier logs
// messages instead of sending them.
func New(ctx context.Context, cfg Config) *Notifier {
	n := &Notifier{
		from:      cfg.From,
		appName:   cfg.AppName,
		engine:    liquid.NewEngine(),
		templates: builtinTemplates(),
	}
	if n.appName == "" {
		n.appName = "Rivio"
	}
	if cfg.From == "" {
		log.Printf("[Notifier] no sender address configured, using log-only delivery")
		return n
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		log.Printf("[Notifier] aws config failed, using log-only delivery: %v", err)
		return n
	}
	n.sender = &sesSender{client: sesv2.NewFromConfig(awsCfg), from: cfg.From}
	return n
}

// NewWithSender is for tests and custom transports.
func NewWithSender(s Sender, appName string) *Notifier {
	return &Notifier{sender: s, appName: appName, engine: liquid.NewEngine(), templates: builtinTemplates()}
}

// SendOTP delivers a one-time code to the given contact. Phone delivery has
// no SMS gateway wired yet, so it is always log-only.
func (n *Notifier) SendOTP(ctx context.Context, kind domain.ContactKind, value, code string, purpose domain.OTPPurpose) error {
	bindings := map[string]interface{}{
		"app_name": n.appName,
		"code":     code,
		"purpose":  string(purpose),
	}
	subject, html, text, err := n.render("otp", bindings)
	if err != nil {
		return err
	}
	if kind != domain.ContactEmail || n.sender == nil {
		log.Printf("[Notifier] otp for %s (%s): %s", string(kind), string(purpose), code)
		return nil
	}
	return n.sender.Send(ctx, value, subject, html, text)
}

// SendAccountDeletionScheduled notifies a user that deletion was queued.
func (n *Notifier) SendAccountDeletionScheduled(ctx context.Context, email string, graceDays int) error {
	bindings := map[string]interface{}{
		"app_name":   n.appName,
		"grace_days": graceDays,
	}
	subject, html, text, err := n.render("deletion_scheduled", bindings)
	if err != nil {
		return err
	}
	if email == "" || n.sender == nil {
		log.Printf("[Notifier] deletion scheduled notice (grace %dd)", graceDays)
		return nil
	}
	return n.sender.Send(ctx, email, subject, html, text)
}

func (n *Notifier) render(name string, bindings map[string]interface{}) (subject, html, text string, err error) {
	t, ok := n.templates[name]
	if !ok {
		return "", "", "", fmt.Errorf("unknown template %q", name)
	}
	subject, err = n.engine.ParseAndRenderString(t.subject, bindings)
	if err != nil {
		return "", "", "", fmt.Errorf("render %s subject: %w", name, err)
	}
	html, err = n.engine.ParseAndRenderString(t.html, bindings)
	if err != nil {
		return "", "", "", fmt.Errorf("render %s html: %w", name, err)
	}
	text, err = n.engine.ParseAndRenderString(t.text, bindings)
	if err != nil {
		return "", "", "", fmt.Errorf("render %s text: %w", name, err)
	}
	return subject, html, text, nil
}

func builtinTemplates() map[string]template {
	return map[string]template{
		"otp": {
			subject: "{{ app_name }} verification code",
			html:    `<p>Your {{ app_name }} code is <strong>{{ code }}</strong>.</p><p>It expires in 10 minutes. If you did not request it, ignore this message.</p>`,
			text:    "Your {{ app_name }} code is {{ code }}. It expires in 10 minutes.",
		},
		"deletion_scheduled": {
			subject: "{{ app_name }} account deletion scheduled",
			html:    `<p>Your {{ app_name }} account will be permanently deleted in {{ grace_days }} days.</p><p>Log in before then to cancel the request.</p>`,
			text:    "Your {{ app_name }} account will be permanently deleted in {{ grace_days }} days. Log in before then to cancel.",
		},
	}
}

type sesSender struct {
	client *sesv2.Client
	from   string
}

func (s *sesSender) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{to}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(htmlBody)},
					Text: &types.Content{Data: aws.String(textBody)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}
