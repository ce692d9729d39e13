package alerting

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"svfe-monitor/internal/config"
	"svfe-monitor/internal/model"
	"svfe-monitor/internal/telemetry"
)

// RecipientSource lists the addresses critical alerts are mailed to.
type RecipientSource interface {
	ListRecipients(ctx context.Context) ([]string, error)
}

type mailFunc func(ctx context.Context, to string, msg []byte) error

// EmailNotifier mails critical alerts to every registered recipient, one
// message per address.
type EmailNotifier struct {
	cfg        config.EmailConfig
	addr       string
	recipients RecipientSource
	send       mailFunc
	logger     zerolog.Logger
}

// NewEmailNotifier builds an SMTP notifier. Addresses from recipients are
// merged with the statically configured ones.
func NewEmailNotifier(cfg config.EmailConfig, recipients RecipientSource, logger zerolog.Logger) *EmailNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	n := &EmailNotifier{
		cfg:        cfg,
		addr:       net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		recipients: recipients,
		logger:     logger.With().Str("component", "alert_email").Logger(),
	}
	n.send = n.deliver
	return n
}

// Name identifies the channel in logs and metrics.
func (n *EmailNotifier) Name() string { return "email" }

// Notify sends event to each recipient. A failing address does not stop the
// others; the joined failures are returned for logging.
func (n *EmailNotifier) Notify(ctx context.Context, event model.AlertEvent) error {
	to, err := n.addresses(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrDeliveryFailure, err)
	}
	if len(to) == 0 {
		n.logger.Warn().Str("rule", event.Rule).Msg("no email recipients registered")
		return nil
	}

	var failures []error
	for _, addr := range to {
		msg := n.compose(addr, event)
		if err := n.send(ctx, addr, msg); err != nil {
			telemetry.NotificationsSent.WithLabelValues(n.Name(), "failed").Inc()
			n.logger.Error().Err(err).Str("recipient", addr).Str("rule", event.Rule).Msg("email delivery failed")
			failures = append(failures, fmt.Errorf("%s: %w", addr, err))
			continue
		}
		telemetry.NotificationsSent.WithLabelValues(n.Name(), "sent").Inc()
	}

	n.logger.Info().Int("recipients", len(to)).Int("failed", len(failures)).Str("rule", event.Rule).Msg("email alert sent")
	if len(failures) > 0 {
		return fmt.Errorf("%w: %w", model.ErrDeliveryFailure, errors.Join(failures...))
	}
	return nil
}

func (n *EmailNotifier) addresses(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(addr string) {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			return
		}
		key := strings.ToLower(addr)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, addr)
	}

	for _, addr := range n.cfg.Recipients {
		add(addr)
	}
	if n.recipients != nil {
		registered, err := n.recipients.ListRecipients(ctx)
		if err != nil {
			if len(out) == 0 {
				return nil, err
			}
			n.logger.Warn().Err(err).Msg("could not list registered recipients, using configured ones")
		}
		for _, addr := range registered {
			add(addr)
		}
	}
	return out, nil
}

func (n *EmailNotifier) compose(to string, event model.AlertEvent) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", n.cfg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(event.Message)
	if n.cfg.Footer != "" {
		b.WriteString("\r\n\r\n")
		b.WriteString(n.cfg.Footer)
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

// deliver opens one SMTP session per message, upgrading to TLS when offered.
func (n *EmailNotifier) deliver(ctx context.Context, to string, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", n.addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: n.cfg.Host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if n.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
			if err := c.Auth(auth); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}
	if err := c.Mail(n.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}
	return c.Quit()
}

var _ Notifier = (*EmailNotifier)(nil)
