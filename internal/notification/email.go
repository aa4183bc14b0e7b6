package notification

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/sakashimaa/checkout-pipeline/internal/domain"
	"github.com/sakashimaa/checkout-pipeline/pkg/config"
	"github.com/sakashimaa/checkout-pipeline/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Mailer sends one HTML email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type smtpMailer struct {
	cfg    config.SMTP
	logger *zap.Logger
	tracer trace.Tracer
}

func NewSMTPMailer(cfg config.SMTP, logger *zap.Logger) Mailer {
	return &smtpMailer{
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer("notification/email"),
	}
}

func (m *smtpMailer) Send(ctx context.Context, to, subject, body string) error {
	ctx, span := m.tracer.Start(ctx, "smtp.Send")
	defer span.End()

	span.SetAttributes(attribute.String("to.email", to))

	header := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", m.cfg.User, to, subject)
	mime := "MIME-version: 1.0;\r\nContent-Type: text/html; charset=\"UTF-8\";\r\n\r\n"
	msg := []byte(header + mime + body)

	addr := fmt.Sprintf("%s:%s", m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)

	// net/smtp has no context support; run it aside and stop waiting on ctx.
	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, m.cfg.User, []string{to}, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			span.RecordError(err)
			mylogger.Error(ctx, m.logger, "Error sending email", zap.String("to", to), zap.Error(err))

			return fmt.Errorf("failed to send mail: %w", err)
		}
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		return fmt.Errorf("failed to send mail: %w", ctx.Err())
	}

	mylogger.Debug(ctx, m.logger, "Email sent", zap.String("to", to))
	return nil
}

type EmailObserver struct {
	mailer Mailer
}

func NewEmailObserver(mailer Mailer) *EmailObserver {
	return &EmailObserver{mailer: mailer}
}

func (o *EmailObserver) Name() string { return "email" }

func (o *EmailObserver) Notify(ctx context.Context, n domain.Notification) error {
	if n.Recipient.Email == "" {
		return nil
	}

	body := fmt.Sprintf("<h1>%s</h1><p>%s</p>", n.Title, n.Body)
	return o.mailer.Send(ctx, n.Recipient.Email, n.Title, body)
}
