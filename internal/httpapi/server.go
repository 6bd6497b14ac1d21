package httpapi

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"bulksend/internal/dispatch"
	"bulksend/internal/eventbus"
	"bulksend/internal/runtime/supervisor"
	"bulksend/internal/storage"
	logx "bulksend/pkg/logx"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Dispatcher is the part of dispatch.Registry the front end needs.
type Dispatcher interface {
	Create(req dispatch.Request) (string, error)
	Progress(id string) (dispatch.Snapshot, error)
	List() []dispatch.Snapshot
	Active() int
	Stats() supervisor.Snapshot
}

// History lists journaled jobs. It may be nil when storage is disabled.
type History interface {
	RecentJobs(ctx context.Context, n int) ([]storage.JobRecord, error)
}

type Options struct {
	// Token returns the current access token. It is read on every request
	// so a reloaded token applies immediately.
	Token func() string
	// DefaultWorkers is used when a request does not name a worker count.
	DefaultWorkers func() int
	MaxWorkers     func() int

	CORSOrigins []string
	Pprof       bool
	History     History
	Events      *eventbus.Bus
	Log         logx.Logger
}

type Server struct {
	d    Dispatcher
	opts Options
	log  logx.Logger
	tmpl *template.Template
}

func New(d Dispatcher, opts Options) (*Server, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.Token == nil {
		opts.Token = func() string { return "" }
	}
	if opts.DefaultWorkers == nil {
		opts.DefaultWorkers = func() int { return 2 }
	}
	if opts.MaxWorkers == nil {
		opts.MaxWorkers = func() int { return 3 }
	}
	return &Server{d: d, opts: opts, log: log, tmpl: tmpl}, nil
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	if len(s.opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Access-Token"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		// The token may live in a form body, so the limit has to be in
		// place before requireToken parses it.
		r.Use(limitBody(maxFormBytes))
		r.Use(s.requireToken)

		r.Get("/", s.handleIndex)
		r.Post("/", s.handleSubmitForm)
		r.Get("/status/{id}", s.handleStatusPage)
		r.Get("/status_json/{id}", s.handleProgress)

		r.Route("/api", func(r chi.Router) {
			r.Get("/jobs", s.handleListJobs)
			r.Post("/jobs", s.handleCreateJob)
			r.Get("/jobs/{id}", s.handleProgress)
			r.Get("/history", s.handleHistory)
			r.Get("/events", s.handleEvents)
		})

		if s.opts.Pprof {
			r.Mount("/debug", middleware.Profiler())
		}
	})

	return r
}

// requestToken extracts the caller's token without consulting the form
// body for JSON requests.
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if rest, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(rest)
		}
	}
	if h := r.Header.Get("X-Access-Token"); h != "" {
		return strings.TrimSpace(h)
	}
	if v := r.URL.Query().Get("token"); v != "" {
		return v
	}
	if r.Method == http.MethodPost && strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		return r.PostFormValue("token")
	}
	return ""
}

func limitBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := s.opts.Token()
		got := requestToken(r)
		if want == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			s.log.Debug("unauthorized request", logx.String("path", r.URL.Path), logx.String("remote", r.RemoteAddr))
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []logx.Field{
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", status),
			logx.Int("bytes", ww.BytesWritten()),
			logx.Duration("took", time.Since(start)),
			logx.String("request_id", middleware.GetReqID(r.Context())),
		}
		if status >= 500 {
			s.log.Warn("http request", fields...)
			return
		}
		s.log.Debug("http request", fields...)
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
