// Package socket implements the Unix-domain stream socket server and
// client used to carry ipc.Frame messages between a Worker (server) and
// its Supervisor (client), per §4.B.
package socket

import (
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/oriys/nova/internal/domain"
	"github.com/oriys/nova/internal/ipc"
	"github.com/oriys/nova/internal/logging"
)

// Handler answers one request frame with a response frame.
type Handler func(typ domain.MessageType, payload []byte) (domain.MessageType, interface{})

// Server accepts at most one concurrent client (the supervisor is the
// sole peer for a worker's socket) and serially decodes request -> calls
// handler -> encodes response on that one connection.
type Server struct {
	path    string
	ln      net.Listener
	handler Handler

	// ClientConnected, if set, fires once per accepted connection after
	// accept but before the request loop starts, so a worker can push an
	// unsolicited WORKER_READY frame.
	ClientConnected func(conn net.Conn)

	stopped atomic.Bool
	wg      sync.WaitGroup
}

// Bind creates the socket directory if missing (falling back to a temp
// directory on permission error), unlinks any stale socket at path, and
// binds a new listener.
func Bind(path string, handler Handler) (*Server, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		tmp := filepath.Join(os.TempDir(), filepath.Base(dir))
		if mkErr := os.MkdirAll(tmp, 0755); mkErr != nil {
			return nil, mkErr
		}
		path = filepath.Join(tmp, filepath.Base(path))
	}

	_ = os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}

	return &Server{path: path, ln: ln, handler: handler}, nil
}

// Path returns the socket path actually bound (may differ from the
// requested path if a temp-dir fallback was used).
func (s *Server) Path() string { return s.path }

// Serve runs the accept loop until Stop is called. Each connection is
// handled to completion (one request at a time) before the next accept.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.stopped.Load() {
				return nil
			}
			return err
		}

		if s.ClientConnected != nil {
			s.ClientConnected(conn)
		}

		s.wg.Add(1)
		s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	for {
		frame, err := ipc.Decode(conn)
		if err != nil {
			if !s.stopped.Load() {
				logging.Op().Debug("socket: decode failed, closing connection", "path", s.path, "err", err)
			}
			return
		}

		respType, respPayload := s.handler(frame.Type, frame.Payload)
		if respType == 0 && respPayload == nil {
			// Handler chose not to respond (e.g. it replied asynchronously).
			continue
		}

		buf, err := ipc.Encode(respType, respPayload)
		if err != nil {
			logging.Op().Error("socket: encode response failed", "path", s.path, "err", err)
			return
		}
		if _, err := conn.Write(buf); err != nil {
			logging.Op().Debug("socket: write response failed, closing connection", "path", s.path, "err", err)
			return
		}
	}
}

// Push writes an unsolicited frame on conn, e.g. the WORKER_READY
// notification sent right after accept.
func Push(conn net.Conn, typ domain.MessageType, payload interface{}) error {
	buf, err := ipc.Encode(typ, payload)
	if err != nil {
		return err
	}
	_, err = conn.Write(buf)
	return err
}

// Stop closes the listener, unlinks the socket file, and waits for any
// in-flight connection handler to finish.
func (s *Server) Stop() error {
	s.stopped.Store(true)
	err := s.ln.Close()
	s.wg.Wait()
	_ = os.Remove(s.path)
	return err
}
