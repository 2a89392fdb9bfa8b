package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	mg "github.com/mailgun/mailgun-go/v4"
	"github.com/sirupsen/logrus"
)

// Deliverer sends a rendered email. *Mailgun implements it.
type Deliverer interface {
	Send(ctx context.Context, to, subject, text, html string) error
}

// Outcome tells the consumer how to settle a delivery.
type Outcome int

const (
	Ack     Outcome = iota
	Drop            // malformed or rejected by the provider, never retried
	Requeue         // transient send failure
)

// Worker turns queued EmailJob payloads into sent emails.
type Worker struct {
	Deliverer Deliverer
	Logger    *logrus.Logger
}

func (w *Worker) Handle(ctx context.Context, body []byte) Outcome {
	var job EmailJob
	if err := json.Unmarshal(body, &job); err != nil {
		w.Logger.WithError(err).Warn("email worker: bad message")
		return Drop
	}
	if err := job.Validate(); err != nil {
		w.Logger.WithError(err).Warn("email worker: invalid job")
		return Drop
	}
	subject, text, html, err := Render(job)
	if err != nil {
		w.Logger.WithError(err).WithField("template", job.Template).Warn("email worker: render failed")
		return Drop
	}
	c, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := w.Deliverer.Send(c, job.To, subject, text, html); err != nil {
		if rejected(err) {
			w.Logger.WithError(err).WithField("to", job.To).Warn("email worker: rejected by provider")
			return Drop
		}
		w.Logger.WithError(err).WithField("to", job.To).Error("email worker: send failed")
		return Requeue
	}
	w.Logger.WithFields(logrus.Fields{"to": job.To, "template": job.Template}).Info("email sent")
	return Ack
}

// rejected reports a 4xx answer from Mailgun other than rate limiting; resending
// the same message cannot succeed.
func rejected(err error) bool {
	var ure *mg.UnexpectedResponseError
	if !errors.As(err, &ure) {
		return false
	}
	return ure.Actual >= 400 && ure.Actual < 500 && ure.Actual != http.StatusTooManyRequests
}
