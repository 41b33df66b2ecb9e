package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-mediashare/internal/config"
	"github.com/npezzotti/go-mediashare/internal/database"
	"github.com/npezzotti/go-mediashare/internal/engagement"
	"github.com/npezzotti/go-mediashare/internal/feed"
	"github.com/npezzotti/go-mediashare/internal/media"
	"github.com/npezzotti/go-mediashare/internal/messagelog"
	"github.com/npezzotti/go-mediashare/internal/objectstore"
	"github.com/npezzotti/go-mediashare/internal/verification"
)

// Services are the collaborators the HTTP handlers call into.
type Services struct {
	DB       database.Repository
	Hub      *feed.Hub
	Messages *messagelog.Log
	Ledger   *engagement.Ledger
	Catalog  *media.Catalog
	Verifier *verification.Cache
	Objects  objectstore.Store
	// Files serves locally stored objects. It is nil when objects live in
	// S3.
	Files http.Handler
}

type MediaShareApp struct {
	log            *log.Logger
	db             database.Repository
	srv            *http.Server
	hub            *feed.Hub
	messages       *messagelog.Log
	ledger         *engagement.Ledger
	catalog        *media.Catalog
	verifier       *verification.Cache
	objects        objectstore.Store
	signingKey     []byte
	allowedOrigins []string
	dev            bool
}

func NewMediaShareApp(mux *http.ServeMux, logger *log.Logger, svc Services, cfg *config.Config) *MediaShareApp {
	s := &MediaShareApp{
		log:            logger,
		db:             svc.DB,
		hub:            svc.Hub,
		messages:       svc.Messages,
		ledger:         svc.Ledger,
		catalog:        svc.Catalog,
		verifier:       svc.Verifier,
		objects:        svc.Objects,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
		dev:            cfg.Dev,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)

	mux.HandleFunc("POST /auth/send-code", s.sendCode)
	mux.HandleFunc("POST /auth/verify-code", s.verifyCode)
	mux.HandleFunc("POST /auth/signin", s.signin)
	mux.HandleFunc("GET /auth/session", s.requireSession(s.session))
	mux.HandleFunc("GET /auth/logout", s.requireSession(s.logout))

	mux.HandleFunc("GET /users", s.searchUsers)

	mux.HandleFunc("GET /chat/public", s.getPublicMessages)
	mux.HandleFunc("POST /chat/public", s.postPublicMessage)
	mux.HandleFunc("POST /chat/public/voice", s.postPublicVoice)
	mux.HandleFunc("GET /chat/private", s.getPrivateMessages)
	mux.HandleFunc("POST /chat/private", s.postPrivateMessage)
	mux.HandleFunc("POST /chat/private/voice", s.postPrivateVoice)
	mux.HandleFunc("GET /chat/feed", s.serveFeed)

	mux.HandleFunc("GET /media", s.getMedia)
	mux.HandleFunc("POST /media", s.uploadMedia)
	mux.HandleFunc("DELETE /media", s.deleteMedia)
	mux.HandleFunc("PUT /media/tags", s.updateTags)
	mux.HandleFunc("POST /media/views", s.recordView)
	mux.HandleFunc("GET /media/comments", s.getComments)
	mux.HandleFunc("POST /media/comments", s.postComment)
	mux.HandleFunc("GET /media/likes", s.getLikes)
	mux.HandleFunc("POST /media/likes", s.postLike)

	if svc.Files != nil {
		mux.Handle("GET "+objectstore.FilesPath, svc.Files)
	}

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.recoverPanics(h)
	h = handlers.CombinedLoggingHandler(logger.Writer(), h)

	s.srv = &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

func (s *MediaShareApp) Handler() http.Handler {
	return s.srv.Handler
}

func (s *MediaShareApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *MediaShareApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
