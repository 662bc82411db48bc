// Package web provides the HTTP control surface of the raspitherm listener.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/raspitherm/internal/heating"
	"github.com/sweeney/raspitherm/internal/status"
)

// Timeout applied to reading and writing one request.
const siteTimeout = 8 * time.Second

// Controller is the heating core as used by the HTTP layer.
type Controller interface {
	Status(ctx context.Context) (heating.Status, error)
	SetChannel(ctx context.Context, ch heating.Channel, d heating.Desired) (bool, error)
}

// Server serves the control page and the query API over HTTP.
type Server struct {
	httpServer *http.Server
	ctrl       Controller
	tracker    *status.Tracker
	log        *zap.SugaredLogger
}

// New creates a Server driving ctrl and reporting from tracker. Files under
// staticDir are served at /static/.
func New(addr string, ctrl Controller, tracker *status.Tracker, staticDir string, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{ctrl: ctrl, tracker: tracker, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/index.json", s.handleSystemJSON)
	if staticDir != "" {
		mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       siteTimeout,
		ReadHeaderTimeout: siteTimeout,
		WriteTimeout:      siteTimeout,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server. In-flight pulses complete first.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// handleRoot serves every path not otherwise registered. A ch, hw or status
// query parameter (checked in that order) runs the action and answers JSON;
// otherwise the HTML page is rendered.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	q := r.URL.Query()

	action := ""
	var actionErr error
	switch {
	case q.Has("ch"):
		action = "ch"
		actionErr = s.setChannel(ctx, heating.CH, q.Get("ch"))
	case q.Has("hw"):
		action = "hw"
		actionErr = s.setChannel(ctx, heating.HW, q.Get("hw"))
	case q.Has("status"):
		action = "status"
	}

	// A daemon that just refused a connect is not dialled a second time.
	var st heating.Status
	if !errors.Is(actionErr, heating.ErrConnection) {
		var err error
		if st, err = s.ctrl.Status(ctx); err != nil {
			s.log.Warnw("status unavailable, reporting off", "error", err)
		}
	}

	if action != "" {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(formatChannelJSON(st))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, st, s.tracker.Snapshot()); err != nil {
		s.log.Errorw("render page failed", "error", err)
	}
}

func (s *Server) setChannel(ctx context.Context, ch heating.Channel, token string) error {
	desired := heating.ParseDesired(token)
	outcome, err := s.ctrl.SetChannel(ctx, ch, desired)
	if err != nil {
		s.log.Warnw("set channel failed", "channel", ch, "desired", desired, "error", err)
		return err
	}
	s.log.Infow("channel switched", "channel", ch, "requested", token, "status", outcome)
	return nil
}

func (s *Server) handleSystemJSON(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(status.FormatJSON(s.tracker.Snapshot()))
}
