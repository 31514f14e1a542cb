/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Seednode/davinci/archive"
	"github.com/Seednode/davinci/lobby"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/handlers"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

const (
	logDate       string        = `2006-01-02T15:04:05.000-07:00`
	timeout       time.Duration = 10 * time.Second
	defaultRecent int           = 20
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

// server holds everything a request handler may touch.
type server struct {
	cfg      *Config
	logger   *zap.Logger
	recorder archive.Recorder
	registry *lobby.Registry
	hub      *Hub
	service  *lobby.Service
}

func newServer(cfg *Config, logger *zap.Logger, recorder archive.Recorder) *server {
	registry := lobby.NewRegistry(
		lobby.WithLogger(logger.Named("lobby")),
		lobby.WithBotDelays(cfg.botDelays()),
		lobby.WithIdleTimeout(cfg.roomTimeout),
	)

	hub := newHub(logger.Named("hub"))

	return &server{
		cfg:      cfg,
		logger:   logger,
		recorder: recorder,
		registry: registry,
		hub:      hub,
		service:  lobby.NewService(registry, hub, recorder, logger.Named("lobby")),
	}
}

// close drops every client, then stops the lobby and flushes the archive.
func (s *server) close() {
	s.hub.closeAll()
	s.registry.Close()
	s.service.Close()
}

func (s *server) routes() http.Handler {
	cfg := s.cfg

	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		s.logger.Error("handler panicked",
			zap.String("path", r.URL.Path),
			zap.Any("panic", i),
		)

		serveError(cfg, w, http.StatusInternalServerError, "An error has occurred. Please try again.")
	}

	mux.GET(cfg.prefix+"/", serveHomePage(cfg, s.logger))

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, s.logger))

	mux.GET(cfg.prefix+"/health", serveHealthCheck(cfg, s.logger))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg, s.logger))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg, s.logger))

	mux.GET(cfg.prefix+"/rooms", serveRooms(s))

	mux.GET(cfg.prefix+"/rooms/:roomid/qr", serveRoomQR(s))

	mux.GET(cfg.prefix+"/games/recent", serveRecentGames(s))

	mux.GET(cfg.prefix+"/ws", serveWS(s))

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	return handlers.CORS(
		handlers.AllowedOrigins(cfg.corsOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(mux)
}

func serveVersion(cfg *Config, logger *zap.Logger) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("davinci v" + releaseVersion + "\n"))
		if err != nil {
			logger.Debug("write failed", zap.String("path", r.URL.Path), zap.Error(err))

			return
		}

		logger.Info("served version page",
			zap.String("size", humanReadableSize(int64(written))),
			zap.String("client", realIP(r)),
			zap.Duration("elapsed", time.Since(startTime).Round(time.Microsecond)),
		)
	}
}

func serveRooms(s *server) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		_, err := writeJSON(s.cfg, w, lobby.RoomList{Rooms: s.registry.WaitingRooms()})
		if err != nil {
			s.logger.Debug("write failed", zap.String("path", r.URL.Path), zap.Error(err))
		}
	}
}

type recentGames struct {
	Games []archive.Record `json:"games"`
}

func serveRecentGames(s *server) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		limit := defaultRecent
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				serveError(s.cfg, w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		games, err := s.recorder.Recent(ctx, limit)
		if err != nil {
			s.logger.Error("failed to read archive", zap.Error(err))
			serveError(s.cfg, w, http.StatusServiceUnavailable, "archive unavailable")
			return
		}
		if games == nil {
			games = []archive.Record{}
		}

		if _, err := writeJSON(s.cfg, w, recentGames{Games: games}); err != nil {
			s.logger.Debug("write failed", zap.String("path", r.URL.Path), zap.Error(err))
		}
	}
}

// newRecorder returns the redis archive when one is configured and the
// in-memory ring otherwise. The returned func releases it.
func newRecorder(ctx context.Context, cfg *Config, logger *zap.Logger) (archive.Recorder, func(), error) {
	if cfg.redisAddr == "" {
		return archive.NewMemory(cfg.archiveSize), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.redisAddr,
		Password: cfg.redisPassword,
		DB:       cfg.redisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.redisAddr, err)
	}

	logger.Info("archiving games to redis",
		zap.String("addr", cfg.redisAddr),
		zap.Int("db", cfg.redisDB),
	)

	return archive.NewRedis(client, cfg.archiveSize, cfg.archiveTTL), func() { _ = client.Close() }, nil
}

func ServePage(ctx context.Context, cfg *Config, args []string) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting", zap.String("version", releaseVersion))

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	recorder, release, err := newRecorder(ctx, cfg, logger.Named("archive"))
	if err != nil {
		return err
	}
	defer release()

	s := newServer(cfg, logger, recorder)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           s.routes(),
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	errs := make(chan error, 1)

	go func() {
		logger.Info("listening",
			zap.String("url", fmt.Sprintf("%s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)),
		)

		var err error
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errs:
		logger.Error("server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	s.close()

	logger.Info("stopped")

	return err
}
