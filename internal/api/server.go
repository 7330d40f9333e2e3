package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/filevault/internal/filestore"
	"github.com/dmitrijs2005/filevault/internal/folders"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/netx"
)

// PasswordVerifier checks the master password; it returns
// common.ErrUnauthorized on mismatch.
type PasswordVerifier interface {
	Verify(ctx context.Context, password []byte) error
}

type Options struct {
	Addr            string
	AuthRateLimit   int
	AuthRateWindow  time.Duration
	ShutdownTimeout time.Duration
	// MaxUploadBytes caps one upload body; 0 means 1 GiB.
	MaxUploadBytes int64
}

type Server struct {
	opts     Options
	log      logging.Logger
	auth     PasswordVerifier
	folders  *folders.Manager
	files    *filestore.Store
	tokens   *TokenManager
	notifier *Notifier
	limiter  *RateLimiter
}

func NewServer(opts Options, auth PasswordVerifier, fm *folders.Manager, fs *filestore.Store,
	tokens *TokenManager, notifier *Notifier, log logging.Logger) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 1 << 30
	}
	return &Server{
		opts:     opts,
		log:      log.With("module", "api"),
		auth:     auth,
		folders:  fm,
		files:    fs,
		tokens:   tokens,
		notifier: notifier,
		limiter:  NewRateLimiter(opts.AuthRateLimit, opts.AuthRateWindow),
	}
}

// Handler returns the routed handler with request logging applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	protected := RequireToken(s.tokens)

	mux.HandleFunc("GET /{$}", s.banner)
	mux.HandleFunc("/api/auth", s.authenticate)

	mux.Handle("POST /api/logout", protected(http.HandlerFunc(s.logout)))

	mux.Handle("GET /api/folders", protected(http.HandlerFunc(s.listFolders)))
	mux.Handle("POST /api/folders", protected(http.HandlerFunc(s.createFolder)))
	mux.Handle("PATCH /api/folders/{id}", protected(http.HandlerFunc(s.updateFolder)))
	mux.Handle("DELETE /api/folders/{id}", protected(http.HandlerFunc(s.deleteFolder)))
	mux.Handle("GET /api/folders/{id}/files", protected(http.HandlerFunc(s.listFiles)))
	mux.Handle("POST /api/folders/{id}/files", protected(http.HandlerFunc(s.uploadFile)))

	mux.Handle("GET /api/files/{id}", protected(http.HandlerFunc(s.getFile)))
	mux.Handle("GET /api/files/{id}/content", protected(http.HandlerFunc(s.downloadFile)))
	mux.Handle("PATCH /api/files/{id}", protected(http.HandlerFunc(s.updateFile)))
	mux.Handle("DELETE /api/files/{id}", protected(http.HandlerFunc(s.deleteFile)))

	return Chain(mux, RequestLogging(s.log))
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully within the configured timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.log.Info(context.Background(), "Stopping API server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		done <- srv.Shutdown(shutdownCtx)
	}()

	addr := ln.Addr().String()
	s.log.Info(ctx, "Starting API server", "address", addr)
	if !netx.IsLoopback(addr) {
		s.log.Warn(ctx, "API server is reachable from other machines", "address", addr)
	}

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-done
}
