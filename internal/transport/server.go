package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"github.com/saiputravu-labs/meridian/internal/worker"
)

const (
	defaultWorkers    = 16
	defaultConnTimeout = 30 * time.Second
)

// Handler dispatches one inbound frame, writing any response frame(s)
// directly to conn itself (a unary handler writes exactly one frame; the
// GetFills streaming handler writes a Fill frame per queued fill until the
// connection closes or the tomb dies).
type Handler func(t *tomb.Tomb, conn net.Conn, f Frame) error

// Server is a single TCP listener dispatching framed RPCs to a Handler,
// generalized to a caller-supplied method table instead of two hardcoded
// message types, and reused for both the client-facing listener and
// engine-to-engine peer listeners.
type Server struct {
	address string
	handler Handler
	pool    worker.Pool
}

// New constructs a Server bound to address, dispatching every inbound
// frame to handler.
func New(address string, handler Handler) *Server {
	return &Server{
		address: address,
		handler: handler,
		pool:    worker.New(defaultWorkers),
	}
}

// Run starts the listener and worker pool under t, returning once t is
// dying.
func (s *Server) Run(t *tomb.Tomb) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "tcp", s.address)
	if err != nil {
		return fmt.Errorf("transport: listen %s: %w", s.address, err)
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Str("address", s.address).Msg("error closing listener")
		}
	}()

	t.Go(func() error {
		s.pool.Run(t, s.handleConnection)
		return nil
	})

	log.Info().Str("address", s.address).Msg("transport server listening")
	for {
		select {
		case <-t.Dying():
			return nil
		default:
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-t.Dying():
					return nil
				default:
				}
				log.Error().Err(err).Msg("error accepting connection")
				continue
			}
			s.pool.AddTask(conn)
		}
	}
}

// handleConnection reads frames off one connection in a loop, dispatching
// each to the handler, until the connection errors/closes or t dies. A
// persistent connection (the GetFills stream, or a client issuing many
// SubmitOrder calls) is serviced by re-adding itself to the pool after
// each frame.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return nil
	}

	select {
	case <-t.Dying():
		_ = conn.Close()
		return nil
	default:
	}

	_ = conn.SetReadDeadline(time.Now().Add(defaultConnTimeout))
	frame, err := ReadFrame(conn)
	if err != nil {
		log.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("connection closed")
		_ = conn.Close()
		return nil
	}

	if err := s.handler(t, conn, frame); err != nil {
		log.Error().Err(err).Str("method", frame.Method.String()).Msg("handler error")
		_ = conn.Close()
		return nil
	}

	s.pool.AddTask(conn)
	return nil
}
