package mail

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"gopkg.in/gomail.v2"

	"github.com/xavierca1/leadflow/internal/entity"
)

var contactedTemplate = template.Must(template.New("contacted").Parse(
	`Lead #{{.LeadID}} ({{.Company}}) moved to Contacted{{if .From}} from {{.From}}{{end}} at {{.ContactedAt}}.
{{if .ContactName}}
Contact: {{.ContactName}}{{end}}{{if .Email}}
Email: {{.Email}}{{end}}
`))

// NewEmailSender sends notifications from `from` to the owner address `to`.
func NewEmailSender(host string, port int, user, password, from, to string) *EmailSender {
	return &EmailSender{
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		From:     from,
		To:       to,
	}
}

func (s *EmailSender) NotifyContacted(ctx context.Context, ev entity.StageChangedEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m, err := s.buildContactedMessage(ev)
	if err != nil {
		return err
	}

	d := gomail.NewDialer(s.Host, s.Port, s.User, s.Password)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send smtp: %w", err)
	}
	return nil
}

func (s *EmailSender) buildContactedMessage(ev entity.StageChangedEvent) (*gomail.Message, error) {
	body, err := renderContacted(ev)
	if err != nil {
		return nil, err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", s.To)
	m.SetHeader("Subject", fmt.Sprintf("Lead contacted: %s", ev.Company))
	m.SetBody("text/plain", body)
	return m, nil
}

func renderContacted(ev entity.StageChangedEvent) (string, error) {
	data := ContactedEmailData{
		LeadID:      ev.LeadID,
		Company:     ev.Company,
		ContactName: ev.ContactName,
		Email:       ev.Email,
		From:        string(ev.From),
		ContactedAt: ev.ChangedAt.Local().Format("2006-01-02 15:04"),
	}

	var body bytes.Buffer
	if err := contactedTemplate.Execute(&body, data); err != nil {
		return "", fmt.Errorf("render contacted email: %w", err)
	}
	return body.String(), nil
}
