package email_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/acectf/registration/internal/email"
	"github.com/acectf/registration/pkg/config"
)

func TestUnconfiguredMailerDropsSilently(t *testing.T) {
	mailer := email.NewMailer(&config.SMTPConfig{}, "http://localhost:3000", slog.Default())

	assert.NoError(t, mailer.SendVerificationEmail("candidat@lycee.fr", "Marie", "sometoken"))
	assert.NoError(t, mailer.SendWelcomeEmail("candidat@lycee.fr", "Marie", "Les Curieuses"))
}
