// Package session implements the per-connection protocol state machine:
// AWAIT_LOGIN -> AUTHENTICATED(permission, token) -> CLOSED. One Session
// is created per accepted TCP connection and owns its state exclusively;
// the only shared state it touches is the Directory, mediated entirely
// through its coordinators.
//
// Grounded on the per-connection handler shape of pkg/worker.Worker
// (a bounded struct plus an explicit stop channel), generalized here from
// a gRPC client stream to raw net.Conn framing.
package session

import (
	"bufio"
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dirbookd/server/internal/audit"
	"github.com/dirbookd/server/internal/credentials"
	"github.com/dirbookd/server/internal/directory"
	"github.com/dirbookd/server/internal/log"
	"github.com/dirbookd/server/internal/metrics"
	"github.com/dirbookd/server/internal/types"
)

// state is the session's position in the AWAIT_LOGIN -> AUTHENTICATED ->
// CLOSED state machine.
type state int

const (
	stateAwaitLogin state = iota
	stateAuthenticated
	stateClosed
)

// Config bundles the tunables a Session needs that come from
// internal/config rather than being hardcoded constants.
type Config struct {
	AuthRateLimit    time.Duration
	MaxLoginAttempts int
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
}

// Session drives one client connection end to end.
type Session struct {
	conn   net.Conn
	dir    *directory.Directory
	audit  *audit.Log
	cfg    Config
	logger zerolog.Logger

	id    string
	state state

	token      string
	permission types.Permission
	attempts   int
}

// New creates a Session for a freshly accepted connection.
func New(conn net.Conn, dir *directory.Directory, auditLog *audit.Log, cfg Config) *Session {
	id := uuid.New().String()
	return &Session{
		conn:   conn,
		dir:    dir,
		audit:  auditLog,
		cfg:    cfg,
		logger: log.WithSession(id),
		id:     id,
		state:  stateAwaitLogin,
	}
}

// Serve runs the session to completion: it reads frames, dispatches them,
// and writes responses until the connection is closed, a timeout fires,
// or a protocol violation forces termination. Serve always closes conn
// before returning.
func (s *Session) Serve() {
	defer s.conn.Close()
	metrics.ActiveConnections.Inc()
	defer metrics.ActiveConnections.Dec()

	s.logger.Debug().Str("remote", s.conn.RemoteAddr().String()).Msg("session started")

	reader := bufio.NewReaderSize(s.conn, types.BuffSize)
	for s.state != stateClosed {
		frame, err := s.readFrame(reader)
		if err != nil {
			s.logConnError(err)
			return
		}

		switch s.state {
		case stateAwaitLogin:
			s.handleLogin(frame)
		case stateAuthenticated:
			s.handleRequest(frame)
		}
	}
}

// readFrame reads one line-delimited frame, bounded by BuffSize, applying
// the per-socket read timeout.
func (s *Session) readFrame(reader *bufio.Reader) (string, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
		return "", fmt.Errorf("session: set read deadline: %w", err)
	}
	// ReadSlice fails with bufio.ErrBufferFull once a frame outgrows the
	// reader's BuffSize buffer, which closes the session.
	line, err := reader.ReadSlice('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(line), "\r\n"), nil
}

func (s *Session) writeResponse(payload []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("session: set write deadline: %w", err)
	}
	_, err := s.conn.Write(append(payload, '\n'))
	return err
}

// logConnError distinguishes a timeout from other connection errors
// without conflating them: Go's net package exposes no EAGAIN/EWOULDBLOCK
// distinction, so every non-timeout error is logged distinctly rather
// than folded into one "connection lost" bucket.
func (s *Session) logConnError(err error) {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		s.logger.Debug().Msg("session idle timeout, closing")
		return
	}
	if err.Error() == "EOF" {
		s.logger.Debug().Msg("client closed connection")
		return
	}
	s.logger.Debug().Err(err).Msg("connection error, closing session")
}

// --- AWAIT_LOGIN ---

func (s *Session) handleLogin(frame string) {
	if len(frame) < 2 || types.RequestOp(frame[0]) != types.OpTokenLogin {
		s.writeResponse([]byte{byte(types.RespInvalidReq)})
		s.recordAuth("", "invalid_frame")
		s.state = stateClosed
		return
	}

	rest := frame[1:]
	idx := strings.IndexByte(rest, types.KeyValueSeparator)
	if idx < 0 {
		s.writeResponse([]byte{byte(types.RespInvalidReq)})
		s.recordAuth("", "invalid_frame")
		s.state = stateClosed
		return
	}
	username, hash := rest[:idx], rest[idx+1:]
	if !types.ValidUsername(username) || !types.ValidHash(hash) {
		s.writeResponse([]byte{byte(types.RespInvalidReq)})
		s.recordAuth(username, "invalid_frame")
		s.state = stateClosed
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ReadTimeout)
	defer cancel()

	res, ok, err := s.dir.Authenticate(ctx, username, hash)
	if err != nil {
		s.logger.Error().Err(err).Msg("authenticate: coordinator error")
		s.state = stateClosed
		return
	}

	if ok {
		s.completeLogin(username, res)
		return
	}

	s.failLogin(ctx, username)
}

// completeLogin issues the session token and transitions to AUTHENTICATED.
func (s *Session) completeLogin(username string, res credentials.AuthResult) {
	token, err := generateToken()
	if err != nil {
		s.logger.Error().Err(err).Msg("generate session token")
		s.state = stateClosed
		return
	}
	s.token = token
	s.permission = res.Permission
	s.state = stateAuthenticated

	payload := append([]byte{byte(types.RespSuccess), byte(res.Permission)}, token...)
	if err := s.writeResponse(payload); err != nil {
		s.logConnError(err)
		s.state = stateClosed
		return
	}
	s.recordAuth(username, "success")
	s.logger.Info().Str("username", username).Msg("login succeeded")
}

// failLogin distinguishes INV_USERNAME from INV_PASSWORD, sleeps the
// rate-limit delay F before responding, and enforces the lockout
// threshold T.
func (s *Session) failLogin(ctx context.Context, username string) {
	exists, err := s.dir.UserExists(ctx, username)
	if err != nil {
		s.logger.Error().Err(err).Msg("user existence check: coordinator error")
		s.state = stateClosed
		return
	}

	s.attempts++
	time.Sleep(s.cfg.AuthRateLimit)

	if s.attempts >= s.cfg.MaxLoginAttempts {
		s.writeResponse([]byte{byte(types.RespTooManyTry)})
		s.recordAuth(username, "too_many_try")
		s.state = stateClosed
		return
	}

	if !exists {
		s.writeResponse([]byte{byte(types.RespInvalidUser)})
		s.recordAuth(username, "invalid_username")
		return
	}
	s.writeResponse([]byte{byte(types.RespInvalidPass)})
	s.recordAuth(username, "invalid_password")
}

// --- AUTHENTICATED ---

// handleRequest parses a post-login frame strictly positionally:
// OP(1) TOKEN(80) ';'(1) DATA(rest). It never scans for ';' the way the
// username:hash frame scans for ':': the token is a fixed 80 bytes, so
// the separator's position is known in advance.
func (s *Session) handleRequest(frame string) {
	const tokenEnd = 1 + types.SessionTokenLen
	if len(frame) < tokenEnd+1 || frame[tokenEnd] != types.QueryItemsSep {
		s.invalidRequest()
		return
	}

	op := types.RequestOp(frame[0])
	token := frame[1:tokenEnd]
	data := frame[tokenEnd+1:]

	if token != s.token {
		s.invalidRequest()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ReadTimeout)
	defer cancel()

	switch op {
	case types.OpSearch:
		s.handleSearch(ctx, data)
	case types.OpAdd:
		s.handleAdd(ctx, data)
	case types.OpDelete:
		s.handleDelete(ctx, data)
	default:
		s.invalidRequest()
	}
}

func (s *Session) invalidRequest() {
	s.writeResponse([]byte{byte(types.RespInvalidReq)})
	s.state = stateClosed
}

func (s *Session) requireReadWrite() bool {
	if s.permission != types.ReadWrite {
		s.invalidRequest()
		return false
	}
	return true
}

func (s *Session) handleSearch(ctx context.Context, name string) {
	if !types.ValidName(name) {
		s.invalidRequest()
		return
	}
	metricOp := "search"
	value, ok, err := s.dir.SearchMain(ctx, name)
	if err != nil {
		s.logger.Error().Err(err).Msg("search: coordinator error")
		s.state = stateClosed
		return
	}
	if !ok {
		s.respondFail(metricOp)
		return
	}
	payload := append([]byte{byte(types.RespSuccess)}, []byte(name+string(types.KeyValueSeparator)+value)...)
	s.respondPayload(metricOp, payload)
}

func (s *Session) handleAdd(ctx context.Context, data string) {
	if !s.requireReadWrite() {
		return
	}
	idx := strings.IndexByte(data, types.KeyValueSeparator)
	if idx < 0 {
		s.invalidRequest()
		return
	}
	name, numbers := data[:idx], data[idx+1:]
	if !types.ValidName(name) || !types.ValidNums(numbers) {
		s.invalidRequest()
		return
	}
	metricOp := "add"
	if err := s.dir.AddMain(ctx, name, numbers); err != nil {
		s.respondFail(metricOp)
		return
	}
	s.respondPayload(metricOp, []byte{byte(types.RespSuccess)})
}

func (s *Session) handleDelete(ctx context.Context, name string) {
	if !s.requireReadWrite() {
		return
	}
	if !types.ValidName(name) {
		s.invalidRequest()
		return
	}
	metricOp := "delete"
	if err := s.dir.DeleteMain(ctx, name); err != nil {
		s.respondFail(metricOp)
		return
	}
	s.respondPayload(metricOp, []byte{byte(types.RespSuccess)})
}

func (s *Session) respondFail(op string) {
	metrics.RequestsTotal.WithLabelValues(op, "fail").Inc()
	if err := s.writeResponse([]byte{byte(types.RespFail)}); err != nil {
		s.logConnError(err)
		s.state = stateClosed
	}
}

func (s *Session) respondPayload(op string, payload []byte) {
	metrics.RequestsTotal.WithLabelValues(op, "success").Inc()
	if err := s.writeResponse(payload); err != nil {
		s.logConnError(err)
		s.state = stateClosed
	}
}

func (s *Session) recordAuth(username, outcome string) {
	metrics.AuthAttemptsTotal.WithLabelValues(outcome).Inc()
	if s.audit == nil {
		return
	}
	remote := ""
	if s.conn != nil {
		remote = s.conn.RemoteAddr().String()
	}
	if err := s.audit.Record(audit.Event{
		Timestamp:  time.Now(),
		RemoteAddr: remote,
		Username:   username,
		Outcome:    outcome,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("failed to record audit event")
	}
}

// generateToken returns an 80-char random string drawn from the full
// printable charset, grounded on the crypto/rand-then-encode idiom of
// pkg/manager/token.go's TokenManager.GenerateToken, adapted to a
// fixed-length alphabet-indexed encoding instead of hex.
func generateToken() (string, error) {
	raw := make([]byte, types.SessionTokenLen)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("session: generate token: %w", err)
	}
	buf := make([]byte, types.SessionTokenLen)
	for i, b := range raw {
		buf[i] = types.RandCharsetFull[int(b)%len(types.RandCharsetFull)]
	}
	return string(buf), nil
}
