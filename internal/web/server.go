package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/studyhub/internal/cardstore"
	"github.com/conorfennell/studyhub/internal/config"
	"github.com/conorfennell/studyhub/internal/export"
	"github.com/conorfennell/studyhub/internal/ledger"
	"github.com/conorfennell/studyhub/internal/session"
)

//go:embed all:static
var staticFiles embed.FS

//go:embed all:templates
var templateFiles embed.FS

const authCookie = "studyhub_auth"

// Options carries the settings of the presentation layer.
type Options struct {
	Auth         config.Auth
	StatsWindow  int
	SessionLimit int
	Logger       *slog.Logger
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	cards     *cardstore.Store
	ledger    *ledger.Ledger
	session   *session.Controller
	auth      config.Auth
	window    int
	limit     int
	logger    *slog.Logger
	router    *http.ServeMux
	templates *template.Template
	token     string
	now       func() time.Time

	writeProgress func(io.Writer, export.Progress) error
}

var funcs = template.FuncMap{
	"pct": func(f float64) string { return fmt.Sprintf("%.0f%%", f*100) },
	"inc": func(i int) int { return i + 1 },
}

// NewServer creates and configures a new server.
func NewServer(cards *cardstore.Store, l *ledger.Ledger, sc *session.Controller, opts Options) (*Server, error) {
	tpl, err := template.New("").Funcs(funcs).ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cards:     cards,
		ledger:    l,
		session:   sc,
		auth:      opts.Auth,
		window:    opts.StatsWindow,
		limit:     opts.SessionLimit,
		logger:    logger,
		router:    http.NewServeMux(),
		templates: tpl,
		token:     uuid.NewString(),
		now:       time.Now,

		writeProgress: export.WriteProgress,
	}
	if err := s.routes(); err != nil {
		return nil, err
	}
	return s, nil
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() error {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return fmt.Errorf("failed to create sub-filesystem for static assets: %w", err)
	}
	s.router.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	s.router.HandleFunc("GET /login", s.handleGetLogin())
	s.router.HandleFunc("POST /login", s.handlePostLogin())
	s.router.HandleFunc("POST /logout", s.handlePostLogout())

	s.router.Handle("GET /{$}", s.requireLogin(http.RedirectHandler("/study", http.StatusSeeOther)))

	// Study flow
	s.router.Handle("GET /study", s.requireLogin(s.handleGetStudy(false)))
	s.router.Handle("GET /study/answer", s.requireLogin(s.handleGetStudy(true)))
	s.router.Handle("POST /study/start", s.requireLogin(s.handlePostStart()))
	s.router.Handle("POST /study/outcome", s.requireLogin(s.handlePostOutcome()))
	s.router.Handle("POST /study/timed", s.requireLogin(s.handlePostTimed()))
	s.router.Handle("POST /study/next", s.requireLogin(s.handlePostNext()))
	s.router.Handle("POST /study/back", s.requireLogin(s.handlePostBack()))
	s.router.Handle("POST /study/random", s.requireLogin(s.handlePostRandom()))
	s.router.Handle("POST /study/bookmark", s.requireLogin(s.handlePostBookmark()))

	// Progress views
	s.router.Handle("GET /progress", s.requireLogin(s.handleGetProgress()))
	s.router.Handle("GET /api/daily", s.requireLogin(s.handleGetDaily()))
	s.router.Handle("GET /api/categories", s.requireLogin(s.handleGetCategories()))
	s.router.Handle("GET /api/overview", s.requireLogin(s.handleGetOverview()))
	s.router.Handle("GET /export/progress.xlsx", s.requireLogin(s.handleGetExport()))
	return nil
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("Failed to render template", "template", name, "error", err)
	}
}
