package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"loo_review/internal/adapters/backend"
	"loo_review/internal/adapters/geocoding"
	server "loo_review/internal/adapters/http_server"
	"loo_review/internal/adapters/localcache"
	"loo_review/internal/adapters/observability"
	"loo_review/internal/adapters/photo"
	redisad "loo_review/internal/adapters/redis"
	"loo_review/internal/app"
	"loo_review/internal/domain"
	"loo_review/internal/shared"
	"loo_review/internal/storage/sqlstore"
)

const draftTTL = 24 * time.Hour

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := shared.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	// session store
	db, err := sqlstore.Open(ctx, cfg.SessionDriver, cfg.SessionDSN)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.SessionDriver).Msg("session db open failed")
	}
	defer db.Close()
	if err := sqlstore.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("session db migrate failed")
	}
	log.Info().Str("driver", cfg.SessionDriver).Msg("session store ready")

	session := app.NewSession(sqlstore.New(db))
	client, err := backend.New(cfg.APIBaseURL, session, cfg.Categories, cfg.APIRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize backend client")
	}
	session.UseAuth(client)
	if err := session.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("session load failed")
	}

	cache, closeCache := openCache(ctx, cfg)
	defer closeCache()

	geo, err := geocoding.New(cfg.GeocoderBase, cfg.GeocoderUA, cfg.GeocoderRPS, cache)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize geocoder")
	}

	terms := cfg.PolicyTerms
	if terms == nil {
		terms = app.DefaultPolicyTerms
	}
	mapView := app.NewMapView()
	gallery := app.NewGallery(client, cache, cfg.CacheTTL, session, mapView)
	wf := app.NewWorkflow(cfg.Categories, app.NewValidator(cfg.Categories, terms), client, geo, session, gallery)
	mod := app.NewModeration(client, session, gallery)

	if err := gallery.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("initial gallery load failed")
	}

	// http
	h := server.NewHandlers(wf, session, gallery, mod, photo.New(cfg.MaxImageDim), mapView, draftTTL)
	defer h.Close()
	srv := server.New(90 * time.Second)
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(h)

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("backend", cfg.APIBaseURL).Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
}

// openCache prefers redis when REDIS_ADDR answers, else an in-process cache.
func openCache(ctx context.Context, cfg shared.Config) (domain.Cache, func()) {
	if cfg.RedisAddr != "" {
		rc := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		err := rc.Ping(pingCtx)
		if err == nil {
			log.Info().Str("addr", cfg.RedisAddr).Msg("redis cache ok")
			return rc, func() { _ = rc.Close() }
		}
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, using local cache")
		_ = rc.Close()
	}
	lc := localcache.New(cfg.CacheTTL)
	return lc, lc.Close
}
