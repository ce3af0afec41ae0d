// Command coordinatord runs the validator coordinator's HTTP service:
// intake, probabilistic promotion, exactly-once dispatch, result
// recording, and window scoring, all wired against a Postgres store.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hetu-project/validator-coordinator/internal/blockclock"
	"github.com/hetu-project/validator-coordinator/internal/chainoracle"
	"github.com/hetu-project/validator-coordinator/internal/config"
	"github.com/hetu-project/validator-coordinator/internal/core"
	"github.com/hetu-project/validator-coordinator/internal/httpapi"
	"github.com/hetu-project/validator-coordinator/internal/identity"
	"github.com/hetu-project/validator-coordinator/internal/metagraph"
	"github.com/hetu-project/validator-coordinator/internal/principal"
	"github.com/hetu-project/validator-coordinator/internal/store"
	"github.com/hetu-project/validator-coordinator/internal/verifier"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	entry := logrus.NewEntry(log)

	cfg, err := config.Load()
	if err != nil {
		entry.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL, cfg.DBPoolMin, cfg.DBPoolMax, entry)
	if err != nil {
		entry.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		entry.WithError(err).Fatal("failed to apply database schema")
	}

	oracle, err := chainoracle.Dial(cfg.ChainRPCURL)
	if err != nil {
		entry.WithError(err).Fatal("failed to connect to chain RPC")
	}
	defer oracle.Close()
	clock := blockclock.New(oracle, cfg.SecondsPerBlock, entry)

	mg := metagraph.New(metagraph.Config{
		MinerListURL:           cfg.MinerListURL,
		ValidatorListURL:       cfg.ValidatorListURL,
		ManualMinerHotkeys:     cfg.ManualMinerHotkeys,
		ManualValidatorHotkeys: cfg.ManualValidatorHotkeys,
	})
	gate := principal.New(mg, time.Duration(cfg.MetagraphRefreshSeconds)*time.Second, cfg.BlacklistPrefixes, entry)

	var backend verifier.Verifier = verifier.NewDirectBackend(http.DefaultClient, cfg.VerifierAPIURL, cfg.VerifierAPIKey, time.Duration(cfg.VerifierTimeout)*time.Second)
	if cfg.VerifierBackend == config.VerifierRateLimited {
		backend = verifier.NewRateLimitedBackend(backend, cfg.VerifierRateN, time.Duration(cfg.VerifierRateT)*time.Second)
	}

	memo := store.NewScoreMemo(cfg.ScoresMemoPath)

	coordinator := core.New(core.Params{
		Clock:                  clock,
		Gate:                   gate,
		Store:                  db,
		Verifier:               backend,
		Memo:                   memo,
		Log:                    entry,
		BlocksPerWindow:        cfg.BlocksPerWindow,
		SecondsPerBlock:        cfg.SecondsPerBlock,
		MaxSubmissionRate:      cfg.MaxSubmissionRate,
		ValidationsPerRequest:  cfg.ValidationsPerRequest,
		ValidationProbability:  cfg.ValidationProbability,
		ScoringLeaseTTLSeconds: cfg.ScoringLeaseTTLSeconds,
	})

	auth := identity.New(time.Duration(cfg.AuthTimestampSkewSeconds) * time.Second)
	server := httpapi.NewServer(coordinator, auth, cfg.CORSAllowedOrigins, entry)

	errCh := make(chan error, 1)
	go func() {
		entry.WithField("addr", cfg.ListenAddr).Info("coordinator listening")
		errCh <- server.ListenAndServe(cfg.ListenAddr)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			entry.WithError(err).Fatal("server exited unexpectedly")
		}
	case <-ctx.Done():
		entry.Info("shutdown signal received, exiting")
	}
}
