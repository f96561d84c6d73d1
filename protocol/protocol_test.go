package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtocolDescriptor(t *testing.T) {
	tests := []struct {
		protocol Protocol
		name     string
		secure   bool
		port     int
	}{
		{SMTP, "smtp", false, 25},
		{SMTPS, "smtp", true, 465},
		{IMAP, "imap", false, 143},
		{IMAPS, "imaps", true, 993},
		{POP3, "pop3", false, 110},
		{POP3S, "pop3s", true, 995},
	}

	for _, tt := range tests {
		t.Run(tt.protocol.String(), func(t *testing.T) {
			assert.True(t, tt.protocol.Valid())
			assert.Equal(t, tt.name, tt.protocol.Name())
			assert.Equal(t, tt.secure, tt.protocol.Secure())
			assert.Equal(t, tt.port, tt.protocol.DefaultPort())
		})
	}
}

func TestProtocolKeys(t *testing.T) {
	p := IMAPS
	assert.Equal(t, "mail.imaps.host", p.HostKey())
	assert.Equal(t, "mail.imaps.port", p.PortKey())
	assert.Equal(t, "mail.imaps.auth", p.AuthKey())
	assert.Equal(t, "mail.imaps.connectiontimeout", p.ConnectionTimeoutKey())
	assert.Equal(t, "mail.imaps.timeout", p.ReadTimeoutKey())
	assert.Equal(t, "mail.imaps.writetimeout", p.WriteTimeoutKey())
	assert.Equal(t, "mail.imaps.ssl.enable", p.SSLEnableKey())
	assert.Equal(t, "mail.imaps.ssl.trust", p.SSLTrustKey())
	assert.Equal(t, "mail.imaps.ssl.protocols", p.SSLProtocolsKey())
	assert.Equal(t, "mail.imaps.ssl.ciphersuites", p.SSLCipherSuitesKey())
	assert.Equal(t, "mail.imaps.socketFactory", p.SocketFactoryKey())
	assert.Equal(t, "mail.imaps.socketFactory.port", p.SocketFactoryPortKey())
	assert.Equal(t, "mail.imaps.socketFactory.fallback", p.SocketFactoryFallbackKey())
	assert.Equal(t, "mail.imaps.starttls.enable", p.StartTLSKey())

	t.Run("SMTPS shares the smtp namespace", func(t *testing.T) {
		assert.Equal(t, "mail.smtp.host", SMTPS.HostKey())
	})
}

func TestForTLS(t *testing.T) {
	assert.Equal(t, SMTPS, ForTLS(SMTP, true))
	assert.Equal(t, SMTP, ForTLS(SMTPS, false))
	assert.Equal(t, IMAPS, ForTLS(IMAP, true))
	assert.Equal(t, IMAP, ForTLS(IMAPS, false))
	assert.Equal(t, POP3S, ForTLS(POP3, true))
	assert.Equal(t, POP3, ForTLS(POP3, false))
}

func TestParse(t *testing.T) {
	p, err := Parse("pop3s")
	require.NoError(t, err)
	assert.Equal(t, POP3S, p)

	_, err = Parse("nntp")
	assert.Error(t, err)
	assert.False(t, Protocol(0).Valid())
}
