// Package metrics implements a standalone HTTP server for serving pprof
// profiles, Prometheus metrics and a read-only view of the tracker state.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FishyDanny/simple-file-sharing-server/pkg/log"
	"github.com/FishyDanny/simple-file-sharing-server/pkg/stop"
	"github.com/FishyDanny/simple-file-sharing-server/sharing"
)

const jsonContentType = "application/json; charset=UTF-8"

// StatusSource exposes the state served on /sessions and /files.
type StatusSource interface {
	Sessions() []sharing.Session
	Files() []sharing.PublishedFile
}

// Server represents a standalone HTTP server for serving a Prometheus metrics
// endpoint.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Stop shuts down the server.
func (s *Server) Stop() stop.Result {
	c := make(stop.Channel)
	go func() {
		c.Done(s.srv.Shutdown(context.Background()))
	}()

	return c.Result()
}

// Addr returns the address the server listens on.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// NewServer binds addr and asynchronously serves requests. status may be nil,
// in which case the state endpoints are not routed.
func NewServer(addr string, status StatusSource) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		ln: ln,
		srv: &http.Server{
			Handler:           NewRouter(status),
			ReadHeaderTimeout: time.Second * 60,
		},
	}

	go func() {
		if err := s.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed while serving metrics", log.Err(err))
		}
	}()

	log.Info("started serving metrics", log.Fields{"addr": ln.Addr().String()})
	return s, nil
}

type responseFunc func(w http.ResponseWriter, r *http.Request, p httprouter.Params) (int, error)

func makeHandler(inner responseFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		start := time.Now()
		code, err := inner(w, r, p)
		if err != nil {
			http.Error(w, err.Error(), code)
		}
		log.Debug("served status request", log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"code":     code,
			"duration": time.Since(start),
		})
	}
}

// NewRouter returns the routes of the metrics server.
func NewRouter(status StatusSource) http.Handler {
	r := httprouter.New()

	r.Handler(http.MethodGet, "/metrics", promhttp.Handler())
	r.HandlerFunc(http.MethodGet, "/debug/pprof/", pprof.Index)
	r.HandlerFunc(http.MethodGet, "/debug/pprof/cmdline", pprof.Cmdline)
	r.HandlerFunc(http.MethodGet, "/debug/pprof/profile", pprof.Profile)
	r.HandlerFunc(http.MethodGet, "/debug/pprof/symbol", pprof.Symbol)
	r.HandlerFunc(http.MethodGet, "/debug/pprof/trace", pprof.Trace)
	r.Handler(http.MethodGet, "/debug/pprof/heap", pprof.Handler("heap"))
	r.Handler(http.MethodGet, "/debug/pprof/goroutine", pprof.Handler("goroutine"))
	r.GET("/check", makeHandler(check))

	if status != nil {
		h := statusHandler{status}
		r.GET("/sessions", makeHandler(h.sessions))
		r.GET("/files", makeHandler(h.files))
	}
	return r
}

func check(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) (int, error) {
	if _, err := w.Write([]byte("STILL-ALIVE")); err != nil {
		return http.StatusInternalServerError, err
	}
	return http.StatusOK, nil
}

type sessionView struct {
	Username      string    `json:"username"`
	Host          string    `json:"host"`
	Port          uint16    `json:"port"`
	UploadAddr    string    `json:"upload_addr,omitempty"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

type fileView struct {
	Name       string   `json:"name"`
	Publishers []string `json:"publishers"`
}

type statusHandler struct {
	status StatusSource
}

func (h statusHandler) sessions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) (int, error) {
	sessions := h.status.Sessions()
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		v := sessionView{
			Username:      s.Username,
			Host:          s.Host,
			Port:          s.Port,
			LastHeartbeat: s.LastHeartbeat,
		}
		if s.HasUploadPort() {
			v.UploadAddr = s.UploadAddr()
		}
		views = append(views, v)
	}
	return writeJSON(w, r, views)
}

func (h statusHandler) files(w http.ResponseWriter, r *http.Request, _ httprouter.Params) (int, error) {
	files := h.status.Files()
	views := make([]fileView, 0, len(files))
	for _, f := range files {
		views = append(views, fileView{Name: f.Name, Publishers: f.Publishers})
	}
	return writeJSON(w, r, views)
}

func writeJSON(w http.ResponseWriter, r *http.Request, val interface{}) (int, error) {
	w.Header().Set("Content-Type", jsonContentType)

	var err error
	if _, pretty := r.URL.Query()["pretty"]; pretty {
		var buf []byte
		buf, err = json.MarshalIndent(val, "", "  ")
		if err == nil {
			_, err = w.Write(buf)
		}
	} else {
		err = json.NewEncoder(w).Encode(val)
	}

	if err != nil {
		return http.StatusInternalServerError, err
	}
	return http.StatusOK, nil
}
