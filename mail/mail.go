// Package mail sends transactional plain-text mails over SMTP. It is used
// for password-reset notifications; an unconfigured sender reports
// ErrNotConfigured instead of failing silently.
package mail

import (
	"errors"
	"fmt"
	"net/smtp"
	"strings"
)

// ErrNotConfigured is returned when host, user or password is missing.
var ErrNotConfigured = errors.New("mail: SMTP not configured")

// Config holds the SMTP connection settings.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
	// From defaults to User when empty.
	From string `yaml:"from"`
}

func (c *Config) defaults() {
	if c.Port <= 0 {
		c.Port = 587
	}
	if c.From == "" {
		c.From = c.User
	}
}

// Sender delivers mails through a single SMTP account.
type Sender struct {
	cfg  Config
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSender creates a Sender. The zero Config yields a sender whose Send
// always returns ErrNotConfigured.
func NewSender(cfg Config) *Sender {
	cfg.defaults()
	return &Sender{cfg: cfg, send: smtp.SendMail}
}

// Enabled reports whether the sender has a usable configuration.
func (s *Sender) Enabled() bool {
	return s != nil && s.cfg.Host != "" && s.cfg.User != "" && s.cfg.Pass != ""
}

// Send delivers one plain-text mail. smtp.SendMail negotiates STARTTLS
// when the server offers it.
func (s *Sender) Send(to, subject, body string) error {
	if !s.Enabled() {
		return ErrNotConfigured
	}
	if to == "" {
		return errors.New("mail: empty recipient")
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)
	msg := buildMessage(s.cfg.From, to, subject, body)
	if err := s.send(addr, auth, s.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("mail: send to %s: %w", to, err)
	}
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// sanitizeHeader truncates user-provided text at the first CR or LF so it
// cannot inject headers. Anything after the break is attacker-controlled
// and gets dropped, not folded into the header value.
func sanitizeHeader(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
