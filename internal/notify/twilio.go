// Package notify defines the playback and notification collaborators.
//
// This file implements a Notifier that delivers messages as SMS through the
// Twilio API.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Opts holds configuration options for the Twilio notifier.
type Opts struct {
	AccountSID string
	AuthToken  string
	From       string
	To         string
}

// Option defines a configuration option for the Twilio notifier.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the sending phone number.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.From = from }
}

// WithToNumber sets the receiving phone number.
func WithToNumber(to string) Option {
	return func(o *Opts) { o.To = to }
}

// TwilioNotifier sends notification messages as SMS.
type TwilioNotifier struct {
	client *twilio.RestClient
	from   string
	to     string
}

// NewTwilioNotifier creates a Twilio-backed Notifier. Credentials fall back
// to the TWILIO_* environment variables when not provided via options.
func NewTwilioNotifier(opts ...Option) (*TwilioNotifier, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.From == "" {
		cfg.From = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.To == "" {
		cfg.To = os.Getenv("TWILIO_TO_NUMBER")
	}
	slog.Debug("Twilio notifier config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"From_set", cfg.From != "",
		"To_set", cfg.To != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.From == "" || cfg.To == "" {
		return nil, fmt.Errorf("from and to numbers must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	return &TwilioNotifier{
		client: client,
		from:   cfg.From,
		to:     cfg.To,
	}, nil
}

// Show sends the message as an SMS to the configured recipient.
func (n *TwilioNotifier) Show(ctx context.Context, message string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(n.to)
	params.SetFrom(n.from)
	params.SetBody(message)

	_, err := n.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio Show failed", "to", n.to, "error", err)
		return fmt.Errorf("failed to send notification to %s: %w", n.to, err)
	}

	slog.Debug("Twilio notification sent", "to", n.to)
	return nil
}
