package service

import (
	"fmt"
	"net/url"
	"time"

	"bitwise74/share-api/internal/model"

	"github.com/spf13/viper"
	"gopkg.in/gomail.v2"
)

// Mailer delivers a single message
type Mailer interface {
	Send(m *gomail.Message) error
}

type SMTPMailer struct {
	From   string
	dialer *gomail.Dialer
}

func NewSMTPMailer() *SMTPMailer {
	from := viper.GetString("mail.sender_address")

	return &SMTPMailer{
		From: from,
		dialer: gomail.NewDialer(
			viper.GetString("mail.host"),
			viper.GetInt("mail.port"),
			from,
			viper.GetString("mail.password"),
		),
	}
}

func (s *SMTPMailer) Send(m *gomail.Message) error {
	return s.dialer.DialAndSend(m)
}

// appURL builds a link to the frontend served on host.domain
func appURL(path string, query url.Values) string {
	scheme := "http"
	if viper.GetBool("host.ssl.enabled") {
		scheme = "https"
	}

	u := url.URL{
		Scheme:   scheme,
		Host:     viper.GetString("host.domain"),
		Path:     path,
		RawQuery: query.Encode(),
	}

	return u.String()
}

func newMessage(from, to, subject, body string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	return m
}

func verifyLink(t *model.VerificationToken) string {
	return appURL("/verify", url.Values{
		"user_id": {t.UserID},
		"token":   {t.Token},
	})
}

// VerificationMessage builds the mail containing the account verification link
func VerificationMessage(from, to string, t *model.VerificationToken) *gomail.Message {
	return newMessage(from, to,
		"Verify your email to start sharing files",
		fmt.Sprintf("Click <a href='%s'>here</a> to verify your account.\n\nThis link will expire in 30 minutes", verifyLink(t)),
	)
}

// EmailChangeMessage is sent to the new address of an account. The change only
// applies once the link is opened
func EmailChangeMessage(from, to string, t *model.VerificationToken) *gomail.Message {
	return newMessage(from, to,
		"Confirm your new email address",
		fmt.Sprintf("Click <a href='%s'>here</a> to use this address for your account.\n\nThis link will expire in 30 minutes. If you didn't ask for this, ignore this mail", verifyLink(t)),
	)
}

// PasswordResetMessage carries the one-time code used to pick a new password
func PasswordResetMessage(from, to, code string, ttl time.Duration) *gomail.Message {
	return newMessage(from, to,
		"Your password reset code",
		fmt.Sprintf("Your password reset code is <strong>%s</strong>.\n\nIt expires in %d minutes. If you didn't ask for it, you can ignore this mail", code, int(ttl.Minutes())),
	)
}
