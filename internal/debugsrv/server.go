// Package debugsrv serves per-instance debug ports over anet.
//
// Requests start with a two-character command; responses start with the
// command's second character incremented, a two-character status and a JSON body:
//
//	ST         instance status        -> SU00{...}
//	MD         loaded module names    -> ME00[...]
//	EV<expr>   evaluate on the loop   -> EW00"..."
//	PS         host process stats     -> PT00{...}
package debugsrv

import (
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	anetserver "github.com/andrei-cloud/anet/server"
	"github.com/andrei-cloud/go_reactor/internal/errorcodes"
	"github.com/andrei-cloud/go_reactor/internal/jsenv"
	"github.com/andrei-cloud/go_reactor/internal/pool"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// logAdapter implements anet.Logger using zerolog.
type logAdapter struct{}

func (l logAdapter) Print(v ...any) {
	log.Info().Msg(fmt.Sprint(v...))
}

func (l logAdapter) Printf(format string, v ...any) {
	log.Info().Msgf(format, v...)
}

func (l logAdapter) Infof(format string, v ...any) {
	log.Info().Msgf(format, v...)
}

func (l logAdapter) Warnf(format string, v ...any) {
	log.Warn().Msgf(format, v...)
}

func (l logAdapter) Errorf(format string, v ...any) {
	log.Error().Msgf(format, v...)
}

// Source resolves the instance currently bound to a debug port.
type Source interface {
	Lookup(port int) (pool.Engine, bool, bool)
	Generation() int
}

type describer interface {
	Status() jsenv.Status
}

type moduleLister interface {
	Modules() []string
}

type evaluator interface {
	Eval(code string) (string, error)
}

// StatusReply is the body of an ST response.
type StatusReply struct {
	Port       int           `json:"port"`
	Busy       bool          `json:"busy"`
	Generation int           `json:"generation"`
	Instance   *jsenv.Status `json:"instance,omitempty"`
}

// Server is the debug endpoint of one pool slot.
type Server struct {
	address     string
	port        int
	srv         *anetserver.Server
	source      Source
	activeConns int32
}

// NewServer configures the debug server for port on host.
func NewServer(host string, port int, src Source) (*Server, error) {
	cfg := &anetserver.ServerConfig{
		MaxConns:        16,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     0 * time.Second, // disable idle connection closure.
		ShutdownTimeout: 5 * time.Second,
		Logger:          logAdapter{},
	}

	s := &Server{
		address: host + ":" + strconv.Itoa(port),
		port:    port,
		source:  src,
	}
	srv, err := anetserver.NewServer(s.address, anetserver.HandlerFunc(s.handle), cfg)
	if err != nil {
		return nil, fmt.Errorf("debug server setup failed: %w", err)
	}
	s.srv = srv

	return s, nil
}

// Address returns the listen address.
func (s *Server) Address() string {
	return s.address
}

// Start begins listening for debug clients.
func (s *Server) Start() error {
	log.Info().Str("address", s.address).Msg("debug server started")
	return s.srv.Start()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	return s.srv.Stop()
}

// incrementCode returns the response code by incrementing the second character.
func incrementCode(cmd string) string {
	b := []byte(cmd)
	if len(b) < 2 {
		return cmd
	}
	if b[1] == 'Z' {
		b[1] = 'A'
	} else {
		b[1]++
	}

	return string(b)
}

// errorResponse constructs an error response carrying the error code and message.
func errorResponse(cmd string, code errorcodes.EnvError, err error) []byte {
	msg := code.Description
	if err != nil {
		msg = err.Error()
	}
	body, _ := json.Marshal(map[string]string{"error": msg})

	return append([]byte(incrementCode(cmd)+code.CodeOnly()), body...)
}

func okResponse(cmd string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	return append([]byte(incrementCode(cmd)+errorcodes.Err00.CodeOnly()), body...), nil
}

func (s *Server) handle(conn *anetserver.ServerConn, data []byte) ([]byte, error) {
	client := conn.Conn.RemoteAddr().String()
	atomic.AddInt32(&s.activeConns, 1)
	defer atomic.AddInt32(&s.activeConns, -1)

	start := time.Now()
	if len(data) < 2 {
		log.Error().Str("client_ip", client).Msg("malformed request")
		return nil, errors.New("malformed request")
	}

	cmd := string(data[:2])
	payload := data[2:]
	log.Debug().
		Str("event", "debug_request").
		Str("client_ip", client).
		Int("port", s.port).
		Str("command", cmd).
		Int("active_connections", int(atomic.LoadInt32(&s.activeConns))).
		Msg("received debug command")

	resp := s.dispatch(cmd, payload)

	log.Debug().
		Str("event", "debug_response").
		Str("client_ip", client).
		Int("port", s.port).
		Str("response", string(resp[:min(4, len(resp))])).
		Str("duration", time.Since(start).String()).
		Msg("sent debug response")

	return resp, nil
}

func (s *Server) dispatch(cmd string, payload []byte) []byte {
	if cmd == "PS" {
		stats, err := CollectProcessStats()
		if err != nil {
			return errorResponse(cmd, errorcodes.ErrStatsUnavailable, err)
		}
		return s.reply(cmd, stats)
	}

	eng, busy, ok := s.source.Lookup(s.port)
	if !ok {
		return errorResponse(cmd, errorcodes.ErrNoInstance, nil)
	}

	switch cmd {
	case "ST":
		reply := StatusReply{Port: s.port, Busy: busy, Generation: s.source.Generation()}
		if d, ok := eng.(describer); ok {
			st := d.Status()
			reply.Instance = &st
		}
		return s.reply(cmd, reply)
	case "MD":
		var names []string
		if l, ok := eng.(moduleLister); ok {
			names = l.Modules()
		}
		return s.reply(cmd, names)
	case "EV":
		ev, ok := eng.(evaluator)
		if !ok {
			return errorResponse(cmd, errorcodes.ErrUnknownCommand, nil)
		}
		if len(payload) == 0 {
			return errorResponse(cmd, errorcodes.ErrMalformedRequest, nil)
		}
		out, err := ev.Eval(string(payload))
		if err != nil {
			return errorResponse(cmd, errorcodes.ErrEvalFailed, err)
		}
		return s.reply(cmd, out)
	default:
		log.Warn().
			Str("event", "unknown_command").
			Str("command", cmd).
			Msg("command not recognized, responding with error code")
		return errorResponse(cmd, errorcodes.ErrUnknownCommand, nil)
	}
}

func (s *Server) reply(cmd string, v any) []byte {
	resp, err := okResponse(cmd, v)
	if err != nil {
		return errorResponse(cmd, errorcodes.ErrMalformedRequest, err)
	}

	return resp
}
