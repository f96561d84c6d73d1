package session

import (
	"crypto/tls"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vdavid/mailkit/email"
	"github.com/vdavid/mailkit/protocol"
)

func TestNew_Properties(t *testing.T) {
	t.Run("computes the table in milliseconds", func(t *testing.T) {
		s, err := New(Options{
			Protocol:          protocol.IMAPS,
			Host:              "imap.example.com",
			ConnectionTimeout: 10,
			ReadTimeout:       5,
			WriteTimeout:      1,
		})
		require.NoError(t, err)

		props := s.Properties()
		assert.Equal(t, "imap.example.com", props["mail.imaps.host"])
		assert.Equal(t, "993", props["mail.imaps.port"])
		assert.Equal(t, "10000", props["mail.imaps.connectiontimeout"])
		assert.Equal(t, "5000", props["mail.imaps.timeout"])
		assert.Equal(t, "1000", props["mail.imaps.writetimeout"])
		assert.Equal(t, "true", props["mail.imaps.ssl.enable"])
		assert.Equal(t, "imaps", props[protocol.TransportNameKey])
		assert.NotContains(t, props, "mail.imaps.auth")

		assert.Equal(t, 10*time.Second, s.ConnectionTimeout())
		assert.Equal(t, 5*time.Second, s.ReadTimeout())
		assert.Equal(t, time.Second, s.WriteTimeout())
		assert.True(t, s.ImplicitTLS())
		assert.Equal(t, "imap.example.com:993", s.Address())
	})

	t.Run("caller properties override computed ones", func(t *testing.T) {
		s, err := New(Options{
			Protocol:          protocol.SMTP,
			Host:              "smtp.example.com",
			Port:              2525,
			ConnectionTimeout: 10,
			Properties: map[string]string{
				"mail.smtp.connectiontimeout": "250",
				"mail.smtp.host":              "relay.example.com",
				protocol.MimeCharsetKey:       "ISO-8859-1",
			},
		})
		require.NoError(t, err)

		assert.Equal(t, 250*time.Millisecond, s.ConnectionTimeout())
		assert.Equal(t, "relay.example.com:2525", s.Address())
		assert.Equal(t, "ISO-8859-1", s.DefaultCharset())
		assert.False(t, s.ImplicitTLS())
	})

	t.Run("properties are copied", func(t *testing.T) {
		s, err := New(Options{Protocol: protocol.POP3, Host: "localhost"})
		require.NoError(t, err)

		s.Properties()["mail.pop3.host"] = "changed"
		assert.Equal(t, "localhost", s.Host())
		assert.Equal(t, email.DefaultCharset, s.DefaultCharset())
	})

	t.Run("unknown protocol", func(t *testing.T) {
		_, err := New(Options{Host: "localhost"})
		assert.ErrorIs(t, err, email.ErrConnection)
	})
}

func TestNew_Authentication(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		wantErr  string
		wantAuth bool
	}{
		{name: "anonymous"},
		{name: "both present", username: "user", password: "pass", wantAuth: true},
		{name: "password only", password: "pass", wantErr: "Password provided but no username was specified"},
		{name: "username only", username: "user", wantErr: "Username provided but no password was specified"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(Options{Protocol: protocol.IMAP, Host: "localhost", Username: tt.username, Password: tt.password})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, email.ErrConnection)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)

			credentials, ok := s.Credentials()
			assert.Equal(t, tt.wantAuth, ok)
			if tt.wantAuth {
				assert.Equal(t, Credentials{Username: tt.username, Password: tt.password}, credentials)
				assert.Equal(t, "true", s.Properties()["mail.imap.auth"])
			}
		})
	}

	t.Run("auth property turns authentication off", func(t *testing.T) {
		s, err := New(Options{
			Protocol:   protocol.IMAP,
			Host:       "localhost",
			Username:   "user",
			Password:   "pass",
			Properties: map[string]string{"mail.imap.auth": "false"},
		})
		require.NoError(t, err)

		_, ok := s.Credentials()
		assert.False(t, ok)
	})
}

func TestTLSConfig(t *testing.T) {
	t.Run("trust", func(t *testing.T) {
		tests := []struct {
			trust string
			want  bool
		}{
			{trust: "", want: false},
			{trust: "*", want: true},
			{trust: "other.example.com mail.example.com", want: true},
			{trust: "other.example.com", want: false},
		}
		for _, tt := range tests {
			s, err := New(Options{
				Protocol:   protocol.IMAPS,
				Host:       "mail.example.com",
				Properties: map[string]string{"mail.imaps.ssl.trust": tt.trust},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.TLSConfig().InsecureSkipVerify, "trust %q", tt.trust)
			assert.Equal(t, "mail.example.com", s.TLSConfig().ServerName)
		}
	})

	t.Run("protocols and cipher suites", func(t *testing.T) {
		s, err := New(Options{
			Protocol: protocol.SMTPS,
			Host:     "mail.example.com",
			Properties: map[string]string{
				"mail.smtp.ssl.protocols":    "TLSv1.3 TLSv1.2",
				"mail.smtp.ssl.ciphersuites": "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384",
			},
		})
		require.NoError(t, err)

		cfg := s.TLSConfig()
		assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
		assert.Equal(t, uint16(tls.VersionTLS13), cfg.MaxVersion)
		assert.Equal(t, []uint16{tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256, tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384}, cfg.CipherSuites)
	})

	t.Run("base configuration is cloned", func(t *testing.T) {
		base := &tls.Config{ServerName: "override.example.com"}
		s, err := New(Options{Protocol: protocol.POP3S, Host: "mail.example.com", TLS: base})
		require.NoError(t, err)

		s.TLSConfig().ServerName = "changed"
		assert.Equal(t, "override.example.com", s.TLSConfig().ServerName)
		assert.Equal(t, "override.example.com", base.ServerName)
	})

	t.Run("unknown values", func(t *testing.T) {
		_, err := New(Options{
			Protocol:   protocol.IMAPS,
			Host:       "mail.example.com",
			Properties: map[string]string{"mail.imaps.ssl.protocols": "SSLv3"},
		})
		assert.ErrorIs(t, err, email.ErrConnection)

		_, err = New(Options{
			Protocol:   protocol.IMAPS,
			Host:       "mail.example.com",
			Properties: map[string]string{"mail.imaps.ssl.ciphersuites": "NOT_A_SUITE"},
		})
		assert.ErrorIs(t, err, email.ErrConnection)
	})
}

func TestStartTLS(t *testing.T) {
	s, err := New(Options{
		Protocol:   protocol.SMTP,
		Host:       "localhost",
		Properties: map[string]string{"mail.smtp.starttls.enable": "true"},
	})
	require.NoError(t, err)
	assert.True(t, s.StartTLS())

	s, err = New(Options{
		Protocol:   protocol.SMTPS,
		Host:       "localhost",
		Properties: map[string]string{"mail.smtp.starttls.enable": "true"},
	})
	require.NoError(t, err)
	assert.False(t, s.StartTLS(), "implicit TLS never upgrades")
}

func listen(t *testing.T) (net.Listener, int) {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	return l, l.Addr().(*net.TCPAddr).Port
}

func TestDial(t *testing.T) {
	_, port := listen(t)

	t.Run("plain", func(t *testing.T) {
		s, err := New(Options{Protocol: protocol.IMAP, Host: "127.0.0.1", Port: port, ConnectionTimeout: 5})
		require.NoError(t, err)

		conn, err := s.Dial()
		require.NoError(t, err)
		_ = conn.Close()
	})

	t.Run("socket factory port overrides the port", func(t *testing.T) {
		s, err := New(Options{
			Protocol:          protocol.IMAP,
			Host:              "127.0.0.1",
			Port:              1,
			ConnectionTimeout: 5,
			Properties:        map[string]string{"mail.imap.socketFactory.port": strconv.Itoa(port)},
		})
		require.NoError(t, err)

		conn, err := s.Dial()
		require.NoError(t, err)
		_ = conn.Close()
	})

	t.Run("TLS handshake failure", func(t *testing.T) {
		s, err := New(Options{Protocol: protocol.IMAPS, Host: "127.0.0.1", Port: port, ConnectionTimeout: 5})
		require.NoError(t, err)

		_, err = s.Dial()
		assert.ErrorIs(t, err, email.ErrConnection)
	})

	t.Run("TLS falls back to plain", func(t *testing.T) {
		s, err := New(Options{
			Protocol:          protocol.IMAPS,
			Host:              "127.0.0.1",
			Port:              port,
			ConnectionTimeout: 5,
			Properties:        map[string]string{"mail.imaps.socketFactory.fallback": "true"},
		})
		require.NoError(t, err)

		conn, err := s.Dial()
		require.NoError(t, err)
		_, isTLS := conn.(*tls.Conn)
		assert.False(t, isTLS)
		_ = conn.Close()
	})
}
