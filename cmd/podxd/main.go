// Command podxd runs the PODx attestation and settlement service: the signing-session HTTP
// surface, the administrative order/shipment/payment surface, and the background recovery
// sweep, all wired against a single Postgres pool and chain gateway.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/accordsai/podx/internal/applog"
	"github.com/accordsai/podx/internal/appmetrics"
	"github.com/accordsai/podx/internal/chain"
	"github.com/accordsai/podx/internal/config"
	"github.com/accordsai/podx/internal/eip712"
	"github.com/accordsai/podx/internal/httpapi"
	"github.com/accordsai/podx/internal/recovery"
	"github.com/accordsai/podx/internal/session"
	"github.com/accordsai/podx/internal/settlement"
	"github.com/accordsai/podx/internal/sigverify"
	"github.com/accordsai/podx/internal/store"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	_ = godotenv.Load()

	env := os.Getenv("APP_ENV")
	if err := applog.Init(env); err != nil {
		panic(err)
	}
	defer applog.Sync()
	log := applog.L()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool := mustConnect(ctx, cfg.DatabaseURL)
	defer pool.Close()
	st := store.New(pool)

	gw, err := chain.New(ctx, cfg)
	if err != nil {
		log.Fatal("chain gateway", zap.Error(err))
	}
	defer gw.Close()

	verifier := sigverify.New(gw.Client())
	settler := settlement.New(st, gw, cfg.RewardPerMeter)
	domain := eip712.Domain{ChainID: cfg.ChainID, VerifyingContract: cfg.VerifyingContractAddress}
	sessions := session.New(st, verifier, settler, domain,
		[]byte(cfg.SessionSecret), time.Duration(cfg.SessionTTLMinutes)*time.Minute, cfg.DefaultRadiusMeters)

	sweeper := recovery.New(st, gw, time.Duration(cfg.RecoveryIntervalSeconds)*time.Second)
	go sweeper.Run(ctx)
	go runExpirySweep(ctx, sessions)

	router := httpapi.Router(httpapi.Deps{Store: st, Sessions: sessions, Chain: gw})
	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: router}

	go func() {
		log.Info("podxd listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown", zap.Error(err))
	}
}

func mustConnect(ctx context.Context, dsn string) *pgxpool.Pool {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		panic(err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		panic(err)
	}
	return pool
}

// runExpirySweep runs the session expire() sweep on a fixed one-minute cadence, independent
// of the recovery sweep's on-chain reconciliation interval.
func runExpirySweep(ctx context.Context, sessions *session.Service) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			byKind, err := sessions.ExpireStale(ctx)
			if err != nil {
				applog.L().Warn("expiry sweep failed", zap.Error(err))
				continue
			}
			var total int64
			for kind, n := range byKind {
				appmetrics.SessionsExpiredTotal.WithLabelValues(string(kind)).Add(float64(n))
				total += n
			}
			if total > 0 {
				applog.L().Info("expired stale signing sessions", zap.Int64("count", total))
			}
		}
	}
}
