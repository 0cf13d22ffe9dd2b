package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"loo_review/internal/adapters/backend"
	"loo_review/internal/adapters/geocoding"
	"loo_review/internal/adapters/localcache"
	"loo_review/internal/adapters/observability"
	"loo_review/internal/adapters/photo"
	"loo_review/internal/app"
	"loo_review/internal/shared"
	"loo_review/internal/storage/sqlstore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := shared.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	path := cfg.ImportManifest
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	f, err := os.Open(path)
	if err != nil {
		log.Fatal().Err(err).Str("manifest", path).Msg("open manifest failed")
	}
	manifest, err := app.LoadManifest(f)
	f.Close()
	if err != nil {
		log.Fatal().Err(err).Str("manifest", path).Msg("invalid manifest")
	}

	log.Info().
		Str("base", cfg.APIBaseURL).
		Str("manifest", path).
		Int("workers", cfg.ImportWorkers).
		Int("reviews", len(manifest.Reviews)).
		Msg("importer starting")

	// the importer submits as whoever is signed in on this device
	db, err := sqlstore.Open(ctx, cfg.SessionDriver, cfg.SessionDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("session db open failed")
	}
	defer db.Close()
	if err := sqlstore.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("session db migrate failed")
	}
	session := app.NewSession(sqlstore.New(db))
	client, err := backend.New(cfg.APIBaseURL, session, cfg.Categories, cfg.APIRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize backend client")
	}
	session.UseAuth(client)
	if err := session.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("session load failed")
	}
	if !session.SignedIn() {
		log.Fatal().Msg("not signed in; sign in through the API first")
	}

	cache := localcache.New(cfg.CacheTTL)
	defer cache.Close()
	geo, err := geocoding.New(cfg.GeocoderBase, cfg.GeocoderUA, cfg.GeocoderRPS, cache)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize geocoder")
	}

	terms := cfg.PolicyTerms
	if terms == nil {
		terms = app.DefaultPolicyTerms
	}
	wf := app.NewWorkflow(cfg.Categories, app.NewValidator(cfg.Categories, terms), client, geo, session, nil)
	results := app.NewImporter(wf, photo.New(cfg.MaxImageDim)).Run(ctx, manifest, cfg.ImportWorkers)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	log.Info().Int("ok", len(results)-failed).Int("failed", failed).Msg("import completed")
	if failed > 0 {
		os.Exit(1)
	}
}
