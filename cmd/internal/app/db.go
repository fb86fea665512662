package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	dbConnectPing = 3 * time.Second
	dbReadyPing   = 2 * time.Second
)

// openPool connects to the remote store database and fails fast when it is
// unreachable. Tables come from `tavern migrate`, never from here.
func openPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: TAVERN_DATABASE_URL: %v", ErrConfig, err)
	}
	if pcfg.ConnConfig.RuntimeParams["application_name"] == "" {
		pcfg.ConnConfig.RuntimeParams["application_name"] = "tavern"
	}
	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 {
		pcfg.MinConns = cfg.DBMinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pingPool(ctx, pool, dbConnectPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db unreachable: %w", err)
	}
	return pool, nil
}

// pingPool round-trips to the server within timeout.
func pingPool(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	return pool.Ping(ctx)
}

// registerPoolGauges exposes pool occupancy on the metrics registry.
func registerPoolGauges(reg prometheus.Registerer, pool *pgxpool.Pool) {
	gauge := func(name, help string, f func(*pgxpool.Stat) int32) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "tavern",
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(f(pool.Stat())) })
	}
	reg.MustRegister(
		gauge("acquired_conns", "Connections currently checked out.", (*pgxpool.Stat).AcquiredConns),
		gauge("idle_conns", "Idle connections in the pool.", (*pgxpool.Stat).IdleConns),
		gauge("total_conns", "All connections owned by the pool.", (*pgxpool.Stat).TotalConns),
		gauge("max_conns", "Configured pool ceiling.", (*pgxpool.Stat).MaxConns),
	)
}
