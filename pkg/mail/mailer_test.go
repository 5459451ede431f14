package mail

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	from   string
	rcpt   string
	data   strings.Builder
	authed bool
	quit   bool
}

func (c *fakeClient) Mail(from string) error { c.from = from; return nil }
func (c *fakeClient) Rcpt(to string) error   { c.rcpt = to; return nil }
func (c *fakeClient) Data() (io.WriteCloser, error) {
	return nopWriteCloser{&c.data}, nil
}
func (c *fakeClient) Quit() error                      { c.quit = true; return nil }
func (c *fakeClient) Close() error                     { return nil }
func (c *fakeClient) StartTLS(*tls.Config) error       { return nil }
func (c *fakeClient) Auth(smtp.Auth) error             { c.authed = true; return nil }
func (c *fakeClient) Extension(string) (bool, string)  { return false, "" }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func fakeMailer(cfg Settings, client *fakeClient) *smtpMailer {
	return &smtpMailer{
		cfg: cfg,
		dial: func(context.Context, Settings) (net.Conn, smtpClient, error) {
			server, conn := net.Pipe()
			_ = server.Close()
			return conn, client, nil
		},
	}
}

func TestSendDisabledReturnsSentinel(t *testing.T) {
	mailer, err := NewSMTPMailer(Settings{Enabled: false})
	require.NoError(t, err)

	err = mailer.Send(context.Background(), Message{To: "person@example.com"})
	require.ErrorIs(t, err, ErrDeliveryDisabled)
}

func TestNewSMTPMailerValidatesWhenEnabled(t *testing.T) {
	_, err := NewSMTPMailer(Settings{Enabled: true})
	require.Error(t, err)

	_, err = NewSMTPMailer(Settings{Enabled: true, Host: "smtp.example.com", Port: 587})
	require.Error(t, err) // missing From

	_, err = NewSMTPMailer(Settings{
		Enabled: true, Host: "smtp.example.com", Port: 587, From: "noreply@example.com",
	})
	require.NoError(t, err)
}

func TestSendWritesFormattedMessage(t *testing.T) {
	client := &fakeClient{}
	mailer := fakeMailer(Settings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "noreply@example.com",
	}, client)

	err := mailer.Send(context.Background(), Message{
		To:      "person@example.com",
		Subject: "Confirm your account",
		Body:    "Open the link.\r\n",
	})
	require.NoError(t, err)

	require.Equal(t, "noreply@example.com", client.from)
	require.Equal(t, "person@example.com", client.rcpt)
	require.True(t, client.quit)
	require.False(t, client.authed)

	payload := client.data.String()
	require.Contains(t, payload, "From: noreply@example.com\r\n")
	require.Contains(t, payload, "To: person@example.com\r\n")
	require.Contains(t, payload, "Subject: Confirm your account\r\n")
	require.Contains(t, payload, "\r\n\r\nOpen the link.")
}

func TestSendAuthenticatesWhenCredentialsSet(t *testing.T) {
	client := &fakeClient{}
	mailer := fakeMailer(Settings{
		Enabled:  true,
		Host:     "smtp.example.com",
		Port:     587,
		From:     "noreply@example.com",
		Username: "mailer",
		Password: "secret",
	}, client)

	err := mailer.Send(context.Background(), Message{To: "person@example.com"})
	require.NoError(t, err)
	require.True(t, client.authed)
}

func TestSendRejectsInvalidRecipient(t *testing.T) {
	client := &fakeClient{}
	mailer := fakeMailer(Settings{
		Enabled: true, Host: "smtp.example.com", Port: 587, From: "noreply@example.com",
	}, client)

	err := mailer.Send(context.Background(), Message{To: "not-an-address"})
	require.Error(t, err)

	err = mailer.Send(context.Background(), Message{To: "  "})
	require.Error(t, err)
}

func TestEscapeHeaderStripsNewlines(t *testing.T) {
	require.Equal(t, "a b c", escapeHeader("a\rb\nc"))
}
