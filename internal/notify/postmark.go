package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/mrz1836/postmark"
)

var ErrInvalidConfig = errors.New("notify: invalid config")

// PostmarkConfig holds the Postmark credentials and sender address.
type PostmarkConfig struct {
	ServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	AccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	From         string `env:"MAIL_FROM"`
	// ResetURL, when set, is linked from reset emails with the token as a
	// "token" query parameter.
	ResetURL string `env:"PASSWORD_RESET_URL"`
}

// Enabled reports whether email delivery is configured.
func (c PostmarkConfig) Enabled() bool { return c.ServerToken != "" }

// PostmarkDispatcher sends codes as transactional email.
type PostmarkDispatcher struct {
	client   *postmark.Client
	from     string
	resetURL string
}

func NewPostmarkDispatcher(cfg PostmarkConfig) (*PostmarkDispatcher, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: POSTMARK_SERVER_TOKEN is required", ErrInvalidConfig)
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("%w: MAIL_FROM is required", ErrInvalidConfig)
	}
	return &PostmarkDispatcher{
		client:   postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		from:     cfg.From,
		resetURL: cfg.ResetURL,
	}, nil
}

func (p *PostmarkDispatcher) render(d Delivery) (subject, body string) {
	token := html.EscapeString(d.Token)
	switch d.Purpose {
	case PurposeEmailVerify:
		return "Verify your email address",
			fmt.Sprintf("<p>Use this token to verify your email address:</p><p><code>%s</code></p>", token)
	default:
		var b strings.Builder
		fmt.Fprintf(&b, "<p>Your verification code is <strong>%s</strong>.</p>", html.EscapeString(d.Code))
		if p.resetURL != "" {
			link := p.resetURL + "?" + url.Values{"token": {d.Token}}.Encode()
			fmt.Fprintf(&b, `<p><a href="%s">Reset your password</a></p>`, html.EscapeString(link))
		}
		fmt.Fprintf(&b, "<p>Reset token:</p><p><code>%s</code></p>", token)
		b.WriteString("<p>Both the code and the token are required. They expire in one hour.</p>")
		return "Your password reset code", b.String()
	}
}

func (p *PostmarkDispatcher) Dispatch(ctx context.Context, d Delivery) error {
	subject, body := p.render(d)
	resp, err := p.client.SendEmail(ctx, postmark.Email{
		From:     p.from,
		To:       d.Destination,
		Subject:  subject,
		Tag:      d.Purpose,
		HTMLBody: body,
	})
	if err != nil {
		return fmt.Errorf("postmark send: %w", err)
	}
	if resp.ErrorCode > 0 {
		return fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message)
	}
	return nil
}
