package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"text/template"
	"time"

	"github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string
	From     string
}

var (
	otpTemplate = template.Must(template.New("otp").Parse(
		"Your verification code is {{.Code}}.\n\nIt expires in a few minutes. If you did not request it, ignore this email.\n"))
	onboardingTemplate = template.Must(template.New("onboarding").Parse(
		"Hi {{.Name}},\n\nYour account is ready. Sign in with a one-time code sent to this address.\n"))
)

// SMTPSink sends notifications as plain-text email
type SMTPSink struct {
	cfg    SMTPConfig
	client *mail.Client
}

func NewSMTPSink(cfg SMTPConfig) (*SMTPSink, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("smtp host and from address are required")
	}

	opts := []mail.Option{mail.WithTimeout(30 * time.Second)}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthLogin),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	if cfg.TLS {
		opts = append(opts,
			mail.WithTLSConfig(&tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}),
			mail.WithTLSPolicy(mail.TLSMandatory),
		)
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create mail client: %w", err)
	}
	return &SMTPSink{cfg: cfg, client: client}, nil
}

func (s *SMTPSink) SendOtp(ctx context.Context, email, code string) error {
	msg, err := s.buildMessage(email, "Your verification code", otpTemplate, map[string]string{"Code": code})
	if err != nil {
		return err
	}
	return s.send(ctx, msg)
}

func (s *SMTPSink) SendOnboarding(ctx context.Context, email, name string) error {
	msg, err := s.buildMessage(email, "Welcome", onboardingTemplate, map[string]string{"Name": name})
	if err != nil {
		return err
	}
	return s.send(ctx, msg)
}

func (s *SMTPSink) buildMessage(to, subject string, tmpl *template.Template, data any) (*mail.Msg, error) {
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}

	msg := mail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("set from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("set to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body.String())
	return msg, nil
}

func (s *SMTPSink) send(ctx context.Context, msg *mail.Msg) error {
	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
