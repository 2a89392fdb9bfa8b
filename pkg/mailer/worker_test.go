package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	mg "github.com/mailgun/mailgun-go/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/identity-service/config"
	"github.com/oksasatya/identity-service/pkg/mailer/templates"
)

type sent struct {
	to, subject, text, html string
}

type fakeDeliverer struct {
	err  error
	sent []sent
}

func (f *fakeDeliverer) Send(_ context.Context, to, subject, text, html string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{to, subject, text, html})
	return nil
}

type fakePublisher struct {
	msgType string
	body    any
}

func (f *fakePublisher) PublishJSON(_ context.Context, msgType string, body any) error {
	f.msgType, f.body = msgType, body
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testConfig() *config.Config {
	return &config.Config{AppName: "Identity", CompanyName: "Acme"}
}

func marshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestRender_VerifyEmail(t *testing.T) {
	job := verifyJob(testConfig(), "ann@example.com", "Ann", "http://app.test/verify-email?token=abc")

	subject, text, html, err := Render(job)
	require.NoError(t, err)
	assert.Equal(t, "Verify your email address", subject)
	assert.Contains(t, text, "http://app.test/verify-email?token=abc")
	assert.Contains(t, html, "http://app.test/verify-email?token=abc")
}

func TestRender_ResetAndPlain(t *testing.T) {
	subject, text, _, err := Render(resetJob(testConfig(), "ann@example.com", "Ann", "http://app.test/reset-password?token=xyz"))
	require.NoError(t, err)
	assert.Equal(t, "Reset your password", subject)
	assert.Contains(t, text, "http://app.test/reset-password?token=xyz")

	subject, text, html, err := Render(EmailJob{To: "a@x.com", Subject: "Hi", Text: "plain", HTML: "<p>x</p>"})
	require.NoError(t, err)
	assert.Equal(t, "Hi", subject)
	assert.Equal(t, "plain", text)
	assert.Equal(t, "<p>x</p>", html)
}

func TestWorker_Handle(t *testing.T) {
	ctx := context.Background()
	good := marshal(t, verifyJob(testConfig(), "ann@example.com", "Ann", "http://app.test/verify-email?token=abc"))

	t.Run("ack", func(t *testing.T) {
		d := &fakeDeliverer{}
		w := &Worker{Deliverer: d, Logger: quietLogger()}
		assert.Equal(t, Ack, w.Handle(ctx, good))
		require.Len(t, d.sent, 1)
		assert.Equal(t, "ann@example.com", d.sent[0].to)
		assert.Equal(t, "Verify your email address", d.sent[0].subject)
	})

	t.Run("drop malformed", func(t *testing.T) {
		d := &fakeDeliverer{}
		w := &Worker{Deliverer: d, Logger: quietLogger()}
		assert.Equal(t, Drop, w.Handle(ctx, []byte("{not json")))
		assert.Equal(t, Drop, w.Handle(ctx, marshal(t, EmailJob{Subject: "no recipient"})))
		assert.Equal(t, Drop, w.Handle(ctx, marshal(t, EmailJob{To: "a@x.com", Template: "missing"})))
		assert.Empty(t, d.sent)
	})

	t.Run("requeue on send failure", func(t *testing.T) {
		w := &Worker{Deliverer: &fakeDeliverer{err: errors.New("mailgun 503")}, Logger: quietLogger()}
		assert.Equal(t, Requeue, w.Handle(ctx, good))
	})

	t.Run("provider status", func(t *testing.T) {
		cases := []struct {
			status int
			want   Outcome
		}{
			{http.StatusBadRequest, Drop},
			{http.StatusUnauthorized, Drop},
			{http.StatusTooManyRequests, Requeue},
			{http.StatusInternalServerError, Requeue},
			{http.StatusServiceUnavailable, Requeue},
		}
		for _, tc := range cases {
			err := fmt.Errorf("send: %w", &mg.UnexpectedResponseError{Expected: []int{http.StatusOK}, Actual: tc.status})
			w := &Worker{Deliverer: &fakeDeliverer{err: err}, Logger: quietLogger()}
			assert.Equal(t, tc.want, w.Handle(ctx, good), "status %d", tc.status)
		}
	})
}

func TestQueueSender(t *testing.T) {
	p := &fakePublisher{}
	q := NewQueueSender(p, testConfig())

	require.NoError(t, q.SendPasswordResetEmail(context.Background(), "ann@example.com", "Ann", "http://app.test/reset-password?token=xyz"))
	assert.Equal(t, "email."+templates.ForgotPassword, p.msgType)
	job, ok := p.body.(EmailJob)
	require.True(t, ok)
	assert.Equal(t, "ann@example.com", job.To)
	assert.Equal(t, "http://app.test/reset-password?token=xyz", job.Data["ResetURL"])
	assert.NotEmpty(t, job.Data["ExpiresAtText"])
}
