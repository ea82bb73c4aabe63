package nntp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"time"

	"juicenet/internal/config"
	"juicenet/internal/services"
)

// NNTP response codes used by the presence check.
const (
	codeReady         = 200
	codeReadyNoPost   = 201
	codeArticleExists = 223
	codeNoSuchArticle = 430
	codeAuthAccepted  = 281
	codePassRequired  = 381
)

// Conn is one authenticated NNTP connection.
type Conn struct {
	raw     net.Conn
	text    *textproto.Conn
	timeout time.Duration
}

// Dial opens a connection to server, reads the greeting, and authenticates
// when credentials are configured.
func Dial(ctx context.Context, server config.Server, timeout time.Duration) (*Conn, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	dialer := &net.Dialer{Timeout: timeout}
	var (
		raw net.Conn
		err error
	)
	if server.TLS {
		tlsDialer := &tls.Dialer{
			NetDialer: dialer,
			Config: &tls.Config{
				ServerName:         server.Host,
				InsecureSkipVerify: server.IgnoreCert, //nolint:gosec
			},
		}
		raw, err = tlsDialer.DialContext(ctx, "tcp", server.Address())
	} else {
		raw, err = dialer.DialContext(ctx, "tcp", server.Address())
	}
	if err != nil {
		return nil, services.Wrap(services.ErrConnection, "verify", "dial "+server.Address(), "", err)
	}

	conn := &Conn{raw: raw, text: textproto.NewConn(raw), timeout: timeout}
	if err := conn.handshake(server); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return conn, nil
}

func (c *Conn) handshake(server config.Server) error {
	c.deadline()
	code, msg, err := c.text.ReadCodeLine(0)
	if err != nil {
		return services.Wrap(services.ErrConnection, "verify", "read greeting", "", err)
	}
	if code != codeReady && code != codeReadyNoPost {
		return services.Wrap(services.ErrConnection, "verify", "read greeting", fmt.Sprintf("%d %s", code, msg), nil)
	}
	if server.Username == "" {
		return nil
	}
	code, msg, err = c.cmd("AUTHINFO USER %s", server.Username)
	if err != nil {
		return services.Wrap(services.ErrConnection, "verify", "authenticate", "", err)
	}
	if code == codePassRequired {
		code, msg, err = c.cmd("AUTHINFO PASS %s", server.Password)
		if err != nil {
			return services.Wrap(services.ErrConnection, "verify", "authenticate", "", err)
		}
	}
	if code != codeAuthAccepted {
		return services.Wrap(services.ErrConnection, "verify", "authenticate", fmt.Sprintf("%d %s", code, msg), nil)
	}
	return nil
}

// Stat reports whether the server has the article. messageID may be given
// with or without angle brackets.
func (c *Conn) Stat(ctx context.Context, messageID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	id := strings.Trim(strings.TrimSpace(messageID), "<>")
	if id == "" {
		return false, errors.New("empty message-id")
	}
	code, msg, err := c.cmd("STAT <%s>", id)
	if err != nil {
		return false, services.Wrap(services.ErrConnection, "verify", "stat", "", err)
	}
	switch code {
	case codeArticleExists:
		return true, nil
	case codeNoSuchArticle:
		return false, nil
	default:
		return false, services.Wrap(services.ErrTransient, "verify", "stat", fmt.Sprintf("unexpected response %d %s", code, msg), nil)
	}
}

// Close sends QUIT and closes the connection.
func (c *Conn) Close() error {
	c.deadline()
	if id, err := c.text.Cmd("QUIT"); err == nil {
		c.text.StartResponse(id)
		_, _, _ = c.text.ReadCodeLine(0)
		c.text.EndResponse(id)
	}
	return c.text.Close()
}

func (c *Conn) cmd(format string, args ...any) (int, string, error) {
	c.deadline()
	id, err := c.text.Cmd(format, args...)
	if err != nil {
		return 0, "", err
	}
	c.text.StartResponse(id)
	defer c.text.EndResponse(id)
	code, msg, err := c.text.ReadCodeLine(0)
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		err = nil
	}
	return code, msg, err
}

func (c *Conn) deadline() {
	_ = c.raw.SetDeadline(time.Now().Add(c.timeout))
}
