// Package webserver serves a read-only HTTP/WebSocket view of the agents in
// one working directory.
package webserver

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agusx1211/brood/internal/debug"
	"github.com/agusx1211/brood/internal/roster"
)

//go:embed static
var staticFS embed.FS

// Source is the agent view the server exposes.
type Source interface {
	List() ([]roster.Agent, error)
	Get(id string) (roster.Agent, error)
	Body(id string) (string, error)
}

// Options configures web server behavior.
type Options struct {
	Host      string
	Port      int
	AuthToken string
	// PollInterval is how often WebSocket streams re-read the logs.
	PollInterval time.Duration
}

// Server hosts the HTTP API and the WebSocket agent streams.
type Server struct {
	src        Source
	httpServer *http.Server
	host       string
	port       int
	authToken  string
	interval   time.Duration
}

// New constructs a server over src. It does not listen until Start.
func New(src Source, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := opts.Port
	if port < 0 {
		port = 0
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = time.Second
	}

	srv := &Server{
		src:       src,
		host:      host,
		port:      port,
		authToken: strings.TrimSpace(opts.AuthToken),
		interval:  interval,
	}

	mux := http.NewServeMux()
	srv.setupRoutes(mux)
	srv.httpServer = &http.Server{
		Addr:              srv.Addr(),
		Handler:           logMiddleware(authMiddleware(srv.authToken, mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv
}

// Start listens and serves in a background goroutine. Port 0 picks a free
// port; Addr reports the bound one afterwards.
func (srv *Server) Start() error {
	ln, err := net.Listen("tcp", srv.Addr())
	if err != nil {
		return err
	}
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		srv.port = tcpAddr.Port
		srv.httpServer.Addr = srv.Addr()
	}

	go func() {
		if err := srv.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			debug.LogErr("webserver", "server stopped with error", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (srv *Server) Shutdown(ctx context.Context) error {
	return srv.httpServer.Shutdown(ctx)
}

// Addr returns the host:port address.
func (srv *Server) Addr() string {
	return net.JoinHostPort(srv.host, strconv.Itoa(srv.port))
}

// Port returns the bound port.
func (srv *Server) Port() int { return srv.port }

// URL returns the dashboard URL, including the token when one is required.
func (srv *Server) URL() string {
	host := srv.host
	if host == "0.0.0.0" || host == "::" {
		host = outboundIP()
	}
	url := fmt.Sprintf("http://%s/", net.JoinHostPort(host, strconv.Itoa(srv.port)))
	if srv.authToken != "" {
		url += "?token=" + srv.authToken
	}
	return url
}

// Exposed reports whether the server listens beyond the loopback interface.
func (srv *Server) Exposed() bool {
	if srv.host == "localhost" {
		return false
	}
	ip := net.ParseIP(srv.host)
	return ip == nil || !ip.IsLoopback()
}

func (srv *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/agents", srv.handleListAgents)
	mux.HandleFunc("GET /api/agents/{id}", srv.handleAgent)
	mux.HandleFunc("GET /api/agents/{id}/log", srv.handleAgentLog)

	mux.HandleFunc("GET /ws/agents", srv.handleAgentsWebSocket)
	mux.HandleFunc("GET /ws/agents/{id}", srv.handleAgentWebSocket)

	mux.HandleFunc("GET /api/{rest...}", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	mux.Handle("GET /static/", http.FileServer(http.FS(staticFS)))
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		data, err := staticFS.ReadFile("static/index.html")
		if err != nil {
			http.Error(w, "failed to load index", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(data)
	})
}

// outboundIP picks the address other hosts on the LAN would use.
func outboundIP() string {
	conn, err := net.Dial("udp", "192.0.2.1:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
