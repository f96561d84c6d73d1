package testutil

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// POP3Message is a message held by the test POP3 server.
type POP3Message struct {
	UID  string
	Data []byte
}

// TestPOP3Server is a minimal in-memory POP3 server (RFC 1939 with UIDL and TOP).
// Deletions are committed when a session quits.
type TestPOP3Server struct {
	Address  string
	listener net.Listener
	username string
	password string

	mu       sync.Mutex
	messages []*POP3Message
	nextUID  int
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// StartTestPOP3Server starts a POP3 server on addr, such as "127.0.0.1:0", with an empty
// maildrop.
func StartTestPOP3Server(addr, username, password string) (*TestPOP3Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	s := &TestPOP3Server{
		Address:  listener.Addr().String(),
		listener: listener,
		username: username,
		password: password,
		nextUID:  1000,
		conns:    map[net.Conn]struct{}{},
	}

	s.wg.Add(1)
	go s.serve()

	return s, nil
}

// NewTestPOP3Server starts a POP3 server on a random local port with the credentials
// "username" and "password", and stops it when the test ends.
func NewTestPOP3Server(t *testing.T) *TestPOP3Server {
	t.Helper()

	s, err := StartTestPOP3Server("127.0.0.1:0", "username", "password")
	if err != nil {
		t.Fatalf("Failed to start POP3 server: %v", err)
	}
	t.Cleanup(s.Close)

	return s
}

// Close stops accepting connections, drops open sessions and waits for them to end.
func (s *TestPOP3Server) Close() {
	_ = s.listener.Close()
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Username returns the test username.
func (s *TestPOP3Server) Username() string {
	return s.username
}

// Password returns the test password.
func (s *TestPOP3Server) Password() string {
	return s.password
}

// Host returns the host the server listens on.
func (s *TestPOP3Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Address)
	return host
}

// Port returns the port the server listens on.
func (s *TestPOP3Server) Port() int {
	return portOf(s.Address)
}

// AddMessage appends a message to the maildrop and returns its UIDL value.
func (s *TestPOP3Server) AddMessage(raw string) string {
	s.mu.Lock()
	s.nextUID++
	uid := strconv.Itoa(s.nextUID)
	s.mu.Unlock()

	s.AddMessageWithUID(uid, raw)
	return uid
}

// AddMessageWithUID appends a message with the given UIDL value.
func (s *TestPOP3Server) AddMessageWithUID(uid, raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, &POP3Message{UID: uid, Data: []byte(raw)})
}

// Messages returns the messages currently in the maildrop.
func (s *TestPOP3Server) Messages() []*POP3Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*POP3Message(nil), s.messages...)
}

func (s *TestPOP3Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.conns, conn)
				s.mu.Unlock()
				_ = conn.Close()
			}()
			s.handle(textproto.NewConn(conn))
		}()
	}
}

var errQuit = errors.New("quit")

// pop3Session is the state of one connection.
type pop3Session struct {
	server   *TestPOP3Server
	user     string
	authed   bool
	maildrop []*POP3Message
	deleted  map[int]bool
}

func (s *TestPOP3Server) handle(c *textproto.Conn) {
	sess := &pop3Session{server: s, deleted: map[int]bool{}}
	if err := c.PrintfLine("+OK test POP3 server ready"); err != nil {
		return
	}

	for {
		line, err := c.ReadLine()
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			_ = c.PrintfLine("-ERR empty command")
			continue
		}

		err = sess.command(c, strings.ToUpper(fields[0]), fields[1:])
		if errors.Is(err, errQuit) {
			return
		}
		if err != nil {
			if writeErr := c.PrintfLine("-ERR %v", err); writeErr != nil {
				return
			}
		}
	}
}

func (sess *pop3Session) command(c *textproto.Conn, cmd string, args []string) error {
	switch cmd {
	case "CAPA":
		return writeMulti(c, "+OK capability list follows", []byte("USER\r\nUIDL\r\nTOP\r\n"))
	case "USER":
		if len(args) != 1 {
			return errors.New("USER needs a name")
		}
		sess.user = args[0]
		return c.PrintfLine("+OK")
	case "PASS":
		if sess.user != sess.server.username || strings.Join(args, " ") != sess.server.password {
			return errors.New("invalid username or password")
		}
		sess.authed = true
		sess.server.mu.Lock()
		sess.maildrop = append([]*POP3Message(nil), sess.server.messages...)
		sess.server.mu.Unlock()
		return c.PrintfLine("+OK maildrop locked")
	case "QUIT":
		sess.commit()
		_ = c.PrintfLine("+OK bye")
		return errQuit
	case "NOOP":
		return c.PrintfLine("+OK")
	}

	if !sess.authed {
		return errors.New("not authenticated")
	}

	switch cmd {
	case "STAT":
		count, size := 0, 0
		for i, m := range sess.maildrop {
			if !sess.deleted[i+1] {
				count++
				size += len(m.Data)
			}
		}
		return c.PrintfLine("+OK %d %d", count, size)
	case "LIST", "UIDL":
		value := func(n int, m *POP3Message) string {
			if cmd == "LIST" {
				return strconv.Itoa(len(m.Data))
			}
			return m.UID
		}
		if len(args) == 1 {
			n, m, err := sess.message(args[0])
			if err != nil {
				return err
			}
			return c.PrintfLine("+OK %d %s", n, value(n, m))
		}
		var buf bytes.Buffer
		for i, m := range sess.maildrop {
			if !sess.deleted[i+1] {
				fmt.Fprintf(&buf, "%d %s\r\n", i+1, value(i+1, m))
			}
		}
		return writeMulti(c, "+OK", buf.Bytes())
	case "RETR":
		if len(args) != 1 {
			return errors.New("RETR needs a message number")
		}
		_, m, err := sess.message(args[0])
		if err != nil {
			return err
		}
		return writeMulti(c, fmt.Sprintf("+OK %d octets", len(m.Data)), m.Data)
	case "TOP":
		if len(args) != 2 {
			return errors.New("TOP needs a message number and a line count")
		}
		_, m, err := sess.message(args[0])
		if err != nil {
			return err
		}
		lines, err := strconv.Atoi(args[1])
		if err != nil || lines < 0 {
			return errors.New("invalid line count")
		}
		return writeMulti(c, "+OK", top(m.Data, lines))
	case "DELE":
		if len(args) != 1 {
			return errors.New("DELE needs a message number")
		}
		n, _, err := sess.message(args[0])
		if err != nil {
			return err
		}
		sess.deleted[n] = true
		return c.PrintfLine("+OK message %d deleted", n)
	case "RSET":
		sess.deleted = map[int]bool{}
		return c.PrintfLine("+OK")
	}

	return fmt.Errorf("unknown command %s", cmd)
}

func (sess *pop3Session) message(arg string) (int, *POP3Message, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(sess.maildrop) {
		return 0, nil, fmt.Errorf("no such message %s", arg)
	}
	if sess.deleted[n] {
		return 0, nil, fmt.Errorf("message %d already deleted", n)
	}
	return n, sess.maildrop[n-1], nil
}

// commit removes the messages deleted in this session from the server.
func (sess *pop3Session) commit() {
	if len(sess.deleted) == 0 {
		return
	}
	gone := map[*POP3Message]bool{}
	for n := range sess.deleted {
		gone[sess.maildrop[n-1]] = true
	}

	sess.server.mu.Lock()
	defer sess.server.mu.Unlock()
	kept := sess.server.messages[:0]
	for _, m := range sess.server.messages {
		if !gone[m] {
			kept = append(kept, m)
		}
	}
	sess.server.messages = kept
}

func writeMulti(c *textproto.Conn, status string, body []byte) error {
	if err := c.PrintfLine("%s", status); err != nil {
		return err
	}
	w := c.DotWriter()
	if _, err := w.Write(body); err != nil {
		return err
	}
	return w.Close()
}

// top returns the header of a message and the first lines of its body.
func top(data []byte, lines int) []byte {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	header, body, _ := strings.Cut(text, "\n\n")

	out := header + "\n\n"
	if lines > 0 && body != "" {
		bodyLines := strings.Split(body, "\n")
		out += strings.Join(bodyLines[:min(lines, len(bodyLines))], "\n")
	}
	return []byte(strings.ReplaceAll(out, "\n", "\r\n"))
}
