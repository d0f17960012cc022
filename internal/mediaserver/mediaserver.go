// Package mediaserver serves local media files to a device over HTTP.
package mediaserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPort is the first port tried by ListenAddress.
const DefaultPort = 3500

const errAddressInUse = "address already in use"

// ListenAddress picks the local IP that routes to deviceHost and the first
// free TCP port on it, starting at DefaultPort.
func ListenAddress(deviceHost string, devicePort int) (string, error) {
	conn, err := net.Dial("udp", net.JoinHostPort(deviceHost, strconv.Itoa(devicePort)))
	if err != nil {
		return "", fmt.Errorf("ListenAddress UDP call error: %w", err)
	}
	defer conn.Close()

	ip, _, err := net.SplitHostPort(conn.LocalAddr().String())
	if err != nil {
		return "", fmt.Errorf("ListenAddress: %w", err)
	}

	port, err := pickPort(ip, DefaultPort)
	if err != nil {
		return "", fmt.Errorf("ListenAddress port error: %w", err)
	}
	return net.JoinHostPort(ip, strconv.Itoa(port)), nil
}

func pickPort(ip string, start int) (int, error) {
	port := start
	for checks := 0; checks < 1000; checks++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
		if err == nil {
			ln.Close()
			return port, nil
		}
		if !strings.Contains(err.Error(), errAddressInUse) {
			return 0, err
		}
		port++
	}
	return 0, fmt.Errorf("checked 1000 ports from %d", start)
}

type entry struct {
	path        string
	data        []byte
	contentType string
	modTime     time.Time
}

// Server serves registered files under /<name>.
type Server struct {
	Logger zerolog.Logger

	addr string

	mu      sync.RWMutex
	files   map[string]entry
	http    *http.Server
	ln      net.Listener
	baseURL string
}

// New returns a server that will listen on addr ("ip:port", port 0 picks one).
func New(addr string) *Server {
	return &Server{
		Logger: zerolog.Nop(),
		addr:   addr,
		files:  make(map[string]entry),
	}
}

// AddFile serves the file at path and returns its URL path.
func (s *Server) AddFile(filePath, contentType string) string {
	name := "/" + url.PathEscape(filepath.Base(filePath))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = entry{path: filePath, contentType: contentType}
	return name
}

// AddBytes serves data under name and returns its URL path.
func (s *Server) AddBytes(name, contentType string, data []byte) string {
	p := "/" + url.PathEscape(path.Base(name))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[p] = entry{data: data, contentType: contentType, modTime: time.Now()}
	return p
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("mediaserver: listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.serve)

	s.mu.Lock()
	s.ln = ln
	s.http = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	s.baseURL = "http://" + ln.Addr().String()
	srv := s.http
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Error().Str("Method", "Start").Err(err).Msg("media server stopped")
		}
	}()
	s.Logger.Debug().Str("Method", "Start").Str("Address", ln.Addr().String()).Msg("serving media")
	return nil
}

// URL returns the absolute URL of a path returned by AddFile or AddBytes.
// It is empty before Start.
func (s *Server) URL(p string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.baseURL == "" {
		return ""
	}
	return s.baseURL + p
}

// Shutdown stops the server, waiting for active transfers until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.http
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) serve(w http.ResponseWriter, req *http.Request) {
	s.mu.RLock()
	e, ok := s.files[req.URL.EscapedPath()]
	s.mu.RUnlock()
	if !ok {
		http.NotFound(w, req)
		return
	}

	s.Logger.Debug().Str("Method", "serve").Str("Path", req.URL.Path).Str("Remote", req.RemoteAddr).Str("Range", req.Header.Get("Range")).Msg("request")

	// Receivers fetch subtitles from another origin.
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if e.contentType != "" {
		w.Header().Set("Content-Type", e.contentType)
	}

	if e.path == "" {
		http.ServeContent(w, req, req.URL.Path, e.modTime, bytes.NewReader(e.data))
		return
	}

	f, err := os.Open(e.path)
	if err != nil {
		s.Logger.Error().Str("Method", "serve").Err(err).Msg("open failed")
		http.Error(w, "file not available", http.StatusNotFound)
		return
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		http.Error(w, "file not available", http.StatusInternalServerError)
		return
	}
	http.ServeContent(w, req, filepath.Base(e.path), st.ModTime(), f)
}
