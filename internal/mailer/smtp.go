package mailer

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"time"

	gomail "gopkg.in/mail.v2"
)

type SMTPClient struct {
	fromEmail string
	host      string
	port      int
	username  string
	password  string
}

func NewSMTPClient(host string, port int, username, password, fromEmail string) (*SMTPClient, error) {
	if host == "" || fromEmail == "" {
		return nil, errors.New("mailer: host and from email are required")
	}
	return &SMTPClient{
		fromEmail: fromEmail,
		host:      host,
		port:      port,
		username:  username,
		password:  password,
	}, nil
}

// Send renders the named template (subject and body blocks) and delivers
// it, retrying transient failures a few times before giving up.
func (c *SMTPClient) Send(templateFile, username, email string, data any) (int, error) {
	tmpl, err := template.ParseFS(FS, "templates/"+templateFile)
	if err != nil {
		return -1, fmt.Errorf("parse mail template %s: %w", templateFile, err)
	}

	subject := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(subject, "subject", data); err != nil {
		return -1, fmt.Errorf("render subject: %w", err)
	}
	body := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(body, "body", data); err != nil {
		return -1, fmt.Errorf("render body: %w", err)
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", c.fromEmail, FromName)
	m.SetAddressHeader("To", email, username)
	m.SetHeader("Subject", subject.String())
	m.SetBody("text/html", body.String())

	d := gomail.NewDialer(c.host, c.port, c.username, c.password)

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if lastErr = d.DialAndSend(m); lastErr == nil {
			return 250, nil
		}
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	return -1, fmt.Errorf("send mail to %s after %d attempts: %w", email, maxRetries, lastErr)
}
