// Package preview serves canvas snapshots over HTTP and streams them to
// websocket clients as PNG frames whenever the canvas changes.
package preview

import (
	"bytes"
	"context"
	"errors"
	"expvar"
	"fmt"
	"image"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/mdns"

	"github.com/opd-ai/go-cutsim/internal/device"
	"github.com/opd-ai/go-cutsim/internal/raster"
)

// ServiceType is the mDNS service advertised for the preview server.
const ServiceType = "_cutsim._tcp"

// DefaultInterval is how often stream handlers check the canvas revision.
const DefaultInterval = 200 * time.Millisecond

// writeTimeout bounds a single websocket frame write.
const writeTimeout = 5 * time.Second

var (
	// ErrAlreadyStarted is returned by Start on a running server.
	ErrAlreadyStarted = errors.New("preview server already started")
	// ErrNotStarted is returned by Addr and Shutdown before Start.
	ErrNotStarted = errors.New("preview server not started")
)

// Source provides canvas copies and a counter that changes whenever the
// canvas does.
type Source interface {
	Snapshot() (*image.Gray, error)
	Revision() uint64
}

// Config holds preview server settings.
type Config struct {
	// Address is the TCP listen address, e.g. ":8080".
	Address string
	// Interval is the revision polling period for websocket streams.
	Interval time.Duration
	// MDNS advertises the server on the local network.
	MDNS bool
	// MDNSName is the advertised instance name. Empty uses the host name.
	MDNSName string
	// ErrorHandler receives background errors. Nil drops them.
	ErrorHandler func(error)
	// DebugVars serves expvar metrics at /debug/vars.
	DebugVars bool
}

// Server is the HTTP preview server.
type Server struct {
	config   Config
	source   Source
	upgrader websocket.Upgrader

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
	mdns     *mdns.Server
	done     chan struct{}
	streams  sync.WaitGroup
	clients  int
}

// NewServer creates a server for source. It does not listen until Start.
func NewServer(source Source, cfg Config) *Server {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Server{
		config: cfg,
		source: source,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		done: make(chan struct{}),
	}
}

// Handler returns the HTTP routes:
//
//	/snapshot.png  current canvas as PNG, 204 when no canvas is allocated
//	/revision      current revision as plain text
//	/ws            websocket stream of PNG frames
//	/debug/vars    expvar metrics, when DebugVars is set
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/snapshot.png", s.handleSnapshot)
	mux.HandleFunc("/revision", s.handleRevision)
	mux.HandleFunc("/ws", s.handleStream)
	if s.config.DebugVars {
		mux.Handle("/debug/vars", expvar.Handler())
	}
	return mux
}

// Start listens on the configured address, serves in the background and,
// when enabled, advertises the server over mDNS.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.http != nil {
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.http = srv
	s.listener = ln

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.report(fmt.Errorf("preview server: %w", err))
		}
	}()

	if s.config.MDNS {
		port := ln.Addr().(*net.TCPAddr).Port
		server, err := advertise(s.config.MDNSName, port)
		if err != nil {
			// The server keeps running without advertisement.
			s.report(err)
		} else {
			s.mdns = server
		}
	}
	return nil
}

// Addr returns the listen address once started.
func (s *Server) Addr() (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil, ErrNotStarted
	}
	return s.listener.Addr(), nil
}

// Clients returns the number of connected websocket streams.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients
}

// Shutdown stops advertisement, closes the streams and shuts the HTTP
// server down.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	md := s.mdns
	s.mdns = nil
	if srv == nil {
		s.mu.Unlock()
		return ErrNotStarted
	}
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.mu.Unlock()

	var errs []error
	if md != nil {
		if err := md.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("mdns shutdown: %w", err))
		}
	}
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	s.streams.Wait()
	return errors.Join(errs...)
}

func (s *Server) report(err error) {
	if s.config.ErrorHandler != nil {
		s.config.ErrorHandler(err)
	}
}

// encodeFrame renders the current canvas as PNG. ok is false when no
// canvas is allocated.
func (s *Server) encodeFrame() (frame []byte, ok bool, err error) {
	img, err := s.source.Snapshot()
	if errors.Is(err, device.ErrNoCanvas) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var buf bytes.Buffer
	if err := raster.Encode(&buf, img, raster.FormatPNG, raster.EncodeOptions{}); err != nil {
		return nil, false, err
	}
	return buf.Bytes(), true, nil
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rev := s.source.Revision()
	frame, ok, err := s.encodeFrame()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Canvas-Revision", strconv.FormatUint(rev, 10))
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(frame)))
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(frame)
}

func (s *Server) handleRevision(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	fmt.Fprintf(w, "%d\n", s.source.Revision())
}

// handleStream pushes a binary PNG frame to the client each time the
// revision changes. The first frame is sent immediately when a canvas is
// allocated.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // Upgrade already replied to the client.
	}
	defer conn.Close()

	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return
	default:
	}
	s.clients++
	s.streams.Add(1)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.clients--
		s.mu.Unlock()
		s.streams.Done()
	}()

	// Reads are only used to notice the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	var last uint64
	sent := false
	for {
		rev := s.source.Revision()
		if !sent || rev != last {
			frame, ok, err := s.encodeFrame()
			if err != nil {
				s.report(fmt.Errorf("preview frame: %w", err))
			} else if ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
					return
				}
				sent = true
				last = rev
			}
		}

		select {
		case <-ticker.C:
		case <-closed:
			return
		case <-s.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		}
	}
}
