package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fastjson"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/coffersTech/nanodiscover/internal/engine"
	"github.com/coffersTech/nanodiscover/internal/library"
	"github.com/coffersTech/nanodiscover/internal/logging"
)

const maxBodyBytes = 10 << 20

// Metrics receives request measurements.
type Metrics interface {
	HTTPRequest(route string, code int)
	IngestRejected()
	LiveClientAdded()
	LiveClientRemoved()
}

type nopMetrics struct{}

func (nopMetrics) HTTPRequest(string, int) {}
func (nopMetrics) IngestRejected()         {}
func (nopMetrics) LiveClientAdded()        {}
func (nopMetrics) LiveClientRemoved()      {}

// Options configures a Server.
type Options struct {
	Engine       *engine.Engine
	Library      *library.Store // nil disables the library routes' persistence
	Metrics      Metrics
	Gatherer     prometheus.Gatherer // serves /metrics when set
	AuthTokens   []string            // bcrypt hashes; empty disables auth
	IngestRate   float64             // requests per second, 0 disables limiting
	IngestBurst  int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Server exposes the discover pipeline, the library and the live stream
// over HTTP.
type Server struct {
	engine   *engine.Engine
	library  *library.Store
	metrics  Metrics
	gatherer prometheus.Gatherer
	hub      *Hub
	limiter  *rate.Limiter
	parser   fastjson.ParserPool
	log      *slog.Logger

	authHashes [][]byte
	verifiedMu sync.RWMutex
	verified   map[string]bool

	srv *http.Server
}

// New creates a Server.
func New(opts Options) *Server {
	s := &Server{
		engine:   opts.Engine,
		library:  opts.Library,
		metrics:  opts.Metrics,
		gatherer: opts.Gatherer,
		log:      logging.Default(opts.Logger).With("component", "server"),
		verified: make(map[string]bool),
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.library == nil {
		s.library = library.NewStore("")
	}
	if opts.IngestRate > 0 {
		burst := opts.IngestBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.IngestRate), burst)
	}
	for _, h := range opts.AuthTokens {
		s.authHashes = append(s.authHashes, []byte(h))
	}
	s.hub = NewHub(opts.Engine, s.metrics, s.log)
	s.srv = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

// Hub returns the live-stream hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.route(mux, "POST /api/discover", s.handleDiscover)
	s.route(mux, "GET /api/search", s.handleSearch)
	s.route(mux, "GET /api/histogram", s.handleHistogram)
	s.route(mux, "GET /api/fields", s.handleFields)
	s.route(mux, "GET /api/fields/values", s.handleFieldValues)
	s.route(mux, "GET /api/stats", s.handleStats)

	s.route(mux, "POST /api/query/parse", s.handleQueryParse)
	s.route(mux, "POST /api/query/build", s.handleQueryBuild)
	s.route(mux, "POST /api/query/validate", s.handleQueryValidate)

	s.route(mux, "POST /api/ingest", s.handleIngest)
	s.route(mux, "GET /api/v1/logs/stream", s.hub.ServeWS)

	s.route(mux, "GET /api/searches", s.handleListSearches)
	s.route(mux, "POST /api/searches", s.handleSaveSearch)
	s.route(mux, "DELETE /api/searches/{id}", s.handleDeleteSearch)
	s.route(mux, "POST /api/searches/{id}/favorite", s.handleToggleFavorite)
	s.route(mux, "GET /api/filters", s.handleListFilters)
	s.route(mux, "POST /api/filters", s.handleSaveFilter)
	s.route(mux, "DELETE /api/filters/{id}", s.handleDeleteFilter)
	s.route(mux, "GET /api/history", s.handleHistory)
	s.route(mux, "DELETE /api/history", s.handleClearHistory)

	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	_, path, _ := strings.Cut(pattern, " ")
	mux.Handle(pattern, s.instrument(path, s.AuthMiddleware(h)))
}

// ListenAndServe runs the HTTP server until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.log.Info("http server listening", "addr", ln.Addr().String())
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes live clients and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.srv.Shutdown(ctx)
}

// AuthMiddleware checks for a valid token in the Authorization header or
// the token query parameter. Tokens are verified against bcrypt hashes;
// accepted tokens are remembered so bcrypt runs once per token.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.authHashes) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		var token string
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimPrefix(auth, "Bearer ")
		} else {
			token = r.URL.Query().Get("token")
		}

		if token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="nanodiscover"`)
			http.Error(w, "Unauthorized: Missing token", http.StatusUnauthorized)
			return
		}
		if !s.verifyToken(token) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="nanodiscover"`)
			http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) verifyToken(token string) bool {
	s.verifiedMu.RLock()
	ok := s.verified[token]
	s.verifiedMu.RUnlock()
	if ok {
		return true
	}
	for _, h := range s.authHashes {
		if bcrypt.CompareHashAndPassword(h, []byte(token)) == nil {
			s.verifiedMu.Lock()
			s.verified[token] = true
			s.verifiedMu.Unlock()
			return true
		}
	}
	return false
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijacking not supported")
	}
	r.code = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.HTTPRequest(route, rec.code)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
