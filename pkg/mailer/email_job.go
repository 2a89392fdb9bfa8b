package mailer

import (
	"fmt"
	"strings"

	"github.com/oksasatya/identity-service/pkg/mailer/templates"
)

// EmailJob is the JSON payload put on the RabbitMQ queue for sending email.
// Either Template+Data or Subject+Text/HTML must be set.
type EmailJob struct {
	To       string         `json:"to"`
	Subject  string         `json:"subject,omitempty"`
	Text     string         `json:"text,omitempty"`
	HTML     string         `json:"html,omitempty"`
	Template string         `json:"template,omitempty"` // verify_email, forgot_password or universal
	Data     map[string]any `json:"data,omitempty"`
}

func (j *EmailJob) Validate() error {
	if strings.TrimSpace(j.To) == "" {
		return fmt.Errorf("email job: missing recipient")
	}
	if j.Template == "" && j.Subject == "" {
		return fmt.Errorf("email job: neither template nor subject set")
	}
	return nil
}

// normalize routes known email types to the universal template and fills
// recipient fields the templates expect.
func (j *EmailJob) normalize() {
	if j.Data == nil {
		j.Data = map[string]any{}
	}
	switch strings.ToLower(j.Template) {
	case templates.VerifyEmail, templates.ForgotPassword:
		if v, ok := j.Data["Type"]; !ok || fmt.Sprintf("%v", v) == "" {
			j.Data["Type"] = strings.ToLower(j.Template)
		}
		j.Template = templates.Universal
	}
	for _, k := range []string{"Email", "RecipientEmail"} {
		if v, ok := j.Data[k]; !ok || fmt.Sprintf("%v", v) == "" {
			j.Data[k] = j.To
		}
	}
}

// Render resolves the final subject and bodies of a job.
func Render(job EmailJob) (subject, text, html string, err error) {
	if job.Template == "" {
		return job.Subject, job.Text, job.HTML, nil
	}
	job.normalize()
	subject, text, html, err = templates.Render(job.Template, job.Data)
	if err != nil {
		return "", "", "", err
	}
	if job.Subject != "" {
		subject = job.Subject
	}
	return strings.TrimSpace(subject), text, html, nil
}
