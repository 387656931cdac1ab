package email

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"

	"github.com/acectf/registration/pkg/config"
)

// Mailer sends the transactional mails over SMTP, speaking implicit TLS on
// 465 and STARTTLS otherwise. Without an SMTP host it logs and drops the
// message so local setups work unconfigured.
type Mailer struct {
	cfg    *config.SMTPConfig
	public string // public base URL for links in mail bodies
	logger *slog.Logger
}

func NewMailer(cfg *config.SMTPConfig, publicURL string, logger *slog.Logger) *Mailer {
	return &Mailer{cfg: cfg, public: publicURL, logger: logger}
}

var verificationTmpl = template.Must(template.New("verification").Parse(`
<p>Bonjour {{.FirstName}},</p>
<p>Bienvenue sur la plateforme d'inscription ACE CTF !</p>
<p>Cliquez sur le lien suivant pour vérifier votre adresse email&nbsp;:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
<p>Ce lien expire dans 24 heures.</p>
`))

var welcomeTmpl = template.Must(template.New("welcome").Parse(`
<p>Bonjour {{.FirstName}},</p>
<p>Vous avez rejoint l'équipe <strong>{{.TeamName}}</strong>. Bonne chance !</p>
`))

func (m *Mailer) SendVerificationEmail(to, firstName, token string) error {
	link := fmt.Sprintf("%s/verify?token=%s", m.public, token)
	body, err := render(verificationTmpl, map[string]string{
		"FirstName": firstName,
		"Link":      link,
	})
	if err != nil {
		return err
	}
	return m.send(to, "Vérifiez votre adresse email — ACE CTF", body)
}

func (m *Mailer) SendWelcomeEmail(to, firstName, teamName string) error {
	body, err := render(welcomeTmpl, map[string]string{
		"FirstName": firstName,
		"TeamName":  teamName,
	})
	if err != nil {
		return err
	}
	return m.send(to, "Bienvenue dans votre équipe — ACE CTF", body)
}

func render(tmpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering mail template: %w", err)
	}
	return buf.String(), nil
}

func (m *Mailer) send(to, subject, body string) error {
	if !m.cfg.Enabled() {
		m.logger.Warn("SMTP not configured, dropping mail", "to", to, "subject", subject)
		return nil
	}

	msg := []byte("To: " + to + "\r\n" +
		"From: " + m.cfg.From + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-version: 1.0;\r\nContent-Type: text/html; charset=\"UTF-8\";\r\n" +
		"\r\n" +
		body + "\r\n")

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	tlsConfig := &tls.Config{ServerName: m.cfg.Host}

	var client *smtp.Client
	if m.cfg.Port == 465 {
		conn, err := tls.Dial("tcp", addr, tlsConfig)
		if err != nil {
			return fmt.Errorf("smtp tls dial: %w", err)
		}
		client, err = smtp.NewClient(conn, m.cfg.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("smtp client: %w", err)
		}
	} else {
		c, err := smtp.Dial(addr)
		if err != nil {
			return fmt.Errorf("smtp dial: %w", err)
		}
		client = c
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	defer client.Quit()

	if m.cfg.User != "" {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}

	m.logger.Info("mail sent", "to", to, "subject", subject)
	return nil
}
