package mailer

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/identity-service/config"
	"github.com/oksasatya/identity-service/pkg/mailer/templates"
)

// resetWindow mirrors the password reset validity shown in the email.
const resetWindow = time.Hour

// Publisher is satisfied by helpers.RabbitPublisher.
type Publisher interface {
	PublishJSON(ctx context.Context, msgType string, body any) error
}

func verifyJob(cfg *config.Config, to, name, link string) EmailJob {
	return EmailJob{
		To:       to,
		Template: templates.VerifyEmail,
		Data:     templates.NewVerifyEmailData(cfg, name, to, link),
	}
}

func resetJob(cfg *config.Config, to, name, link string) EmailJob {
	return EmailJob{
		To:       to,
		Template: templates.ForgotPassword,
		Data:     templates.NewForgotPasswordData(cfg, name, to, link, templates.WithExpiresAt(time.Now().Add(resetWindow))),
	}
}

// QueueSender enqueues email jobs for the email worker.
type QueueSender struct {
	Publisher Publisher
	Config    *config.Config
}

func NewQueueSender(p Publisher, cfg *config.Config) *QueueSender {
	return &QueueSender{Publisher: p, Config: cfg}
}

func (q *QueueSender) SendVerificationEmail(ctx context.Context, to, name, link string) error {
	return q.Publisher.PublishJSON(ctx, "email."+templates.VerifyEmail, verifyJob(q.Config, to, name, link))
}

func (q *QueueSender) SendPasswordResetEmail(ctx context.Context, to, name, link string) error {
	return q.Publisher.PublishJSON(ctx, "email."+templates.ForgotPassword, resetJob(q.Config, to, name, link))
}

// DirectSender renders and delivers through Mailgun in-process.
type DirectSender struct {
	Mailgun *Mailgun
	Config  *config.Config
}

func NewDirectSender(mg *Mailgun, cfg *config.Config) *DirectSender {
	return &DirectSender{Mailgun: mg, Config: cfg}
}

func (d *DirectSender) deliver(ctx context.Context, job EmailJob) error {
	subject, text, html, err := Render(job)
	if err != nil {
		return err
	}
	return d.Mailgun.Send(ctx, job.To, subject, text, html)
}

func (d *DirectSender) SendVerificationEmail(ctx context.Context, to, name, link string) error {
	return d.deliver(ctx, verifyJob(d.Config, to, name, link))
}

func (d *DirectSender) SendPasswordResetEmail(ctx context.Context, to, name, link string) error {
	return d.deliver(ctx, resetJob(d.Config, to, name, link))
}

// LogSender only logs; used when MAIL_SEND_ENABLED is false.
type LogSender struct {
	Logger *logrus.Logger
}

func (l *LogSender) SendVerificationEmail(_ context.Context, to, _, link string) error {
	l.Logger.WithFields(logrus.Fields{"to": to, "link": link}).Info("email disabled: verification link")
	return nil
}

func (l *LogSender) SendPasswordResetEmail(_ context.Context, to, _, link string) error {
	l.Logger.WithFields(logrus.Fields{"to": to, "link": link}).Info("email disabled: password reset link")
	return nil
}
