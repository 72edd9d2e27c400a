package email

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"commenta.app/cloud/internal/logger"
	"gopkg.in/gomail.v2"
)

// Mailer sends the transactional mail of the license lifecycle.
type Mailer interface {
	SendLicenseIssued(to, name, licenseKey string) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	AppURL   string
}

type SMTPMailer struct {
	config SMTPConfig
	send   func(m ...*gomail.Message) error
}

func NewSMTPMailer(config SMTPConfig) *SMTPMailer {
	dialer := gomail.NewDialer(config.Host, config.Port, config.Username, config.Password)
	return &SMTPMailer{
		config: config,
		send:   dialer.DialAndSend,
	}
}

// NoopMailer is used when SMTP is not configured.
type NoopMailer struct{}

func (NoopMailer) SendLicenseIssued(to, name, licenseKey string) error {
	logger.Warn("SMTP not configured, skipping license email", map[string]interface{}{
		"email": to,
	})
	return nil
}

var licenseIssuedHTML = template.Must(template.New("license").Parse(`<html>
<body>
	<h2>Olá {{.Name}},</h2>
	<p>Seu pagamento foi confirmado e o Commenta PRO está ativo.</p>
	<p>Sua chave de licença:</p>
	<p><code>{{.Key}}</code></p>
	<p>No WordPress, abra <strong>Configurações &rarr; Commenta &rarr; Licença</strong> e cole a chave.</p>
	<p>Você também encontra a chave no painel: <a href="{{.DashboardURL}}">{{.DashboardURL}}</a></p>
	<p>Equipe Commenta</p>
</body>
</html>`))

type licenseIssuedData struct {
	Name         string
	Key          string
	DashboardURL string
}

func (s *SMTPMailer) SendLicenseIssued(to, name, licenseKey string) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("recipient address is empty")
	}

	m, err := s.licenseIssuedMessage(to, name, licenseKey)
	if err != nil {
		return err
	}

	if err := s.send(m); err != nil {
		return fmt.Errorf("failed to send license email: %w", err)
	}
	return nil
}

func (s *SMTPMailer) licenseIssuedMessage(to, name, licenseKey string) (*gomail.Message, error) {
	data := licenseIssuedData{
		Name:         firstName(name),
		Key:          licenseKey,
		DashboardURL: s.config.AppURL + "/dashboard/pro",
	}

	var html bytes.Buffer
	if err := licenseIssuedHTML.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("failed to render license email: %w", err)
	}

	plain := fmt.Sprintf(`Olá %s,

Seu pagamento foi confirmado e o Commenta PRO está ativo.

Chave de licença: %s

No WordPress, abra Configurações > Commenta > Licença e cole a chave.
Você também encontra a chave no painel: %s

Equipe Commenta`, data.Name, data.Key, data.DashboardURL)

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Sua licença Commenta PRO")
	m.SetBody("text/plain", plain)
	m.AddAlternative("text/html", html.String())
	return m, nil
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "cliente"
	}
	return fields[0]
}
