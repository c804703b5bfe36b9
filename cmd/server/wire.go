package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"certledger/internal/credential/events"
	credentialhandler "certledger/internal/credential/handler"
	credentialservice "certledger/internal/credential/service"
	"certledger/internal/credential/store"
	"certledger/internal/ledger/assetname"
	"certledger/internal/ledger/indexer"
	indexermetrics "certledger/internal/ledger/indexer/metrics"
	"certledger/internal/ledger/policy"
	"certledger/internal/ledger/tx"
	"certledger/internal/mint"
	minthandler "certledger/internal/mint/handler"
	mintmetrics "certledger/internal/mint/metrics"
	"certledger/internal/platform/config"
	"certledger/internal/platform/database"
	"certledger/internal/platform/health"
	"certledger/internal/platform/kafka/producer"
	"certledger/internal/platform/metrics"
	"certledger/internal/platform/outbox"
	outboxmetrics "certledger/internal/platform/outbox/metrics"
	"certledger/internal/platform/redis"
	"certledger/internal/platform/tracer"
	"certledger/internal/signer"
	"certledger/internal/signer/local"
	"certledger/internal/signer/remote"
	httptransport "certledger/internal/transport/http"
	"certledger/internal/verify"
	verifyhandler "certledger/internal/verify/handler"
	verifymetrics "certledger/internal/verify/metrics"
	"certledger/migrations"
	"certledger/pkg/platform/circuit"
)

// devFundingLovelace seeds the signer wallet on the in-process ledger.
const devFundingLovelace = 500_000_000

type application struct {
	router  http.Handler
	closers []func() error
	logger  *slog.Logger
}

func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

func build(ctx context.Context, cfg config.Server, log *slog.Logger) (*application, error) {
	app := &application{logger: log}
	checks := health.New(cfg.Environment)
	trc := tracer.NewOTel()

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rdb != nil {
		app.closers = append(app.closers, rdb.Close)
		checks.RegisterOptionalCheck("redis", rdb.Health)
		go rdb.ReportPoolStats(ctx, 15*time.Second)
	}

	chain, devLedger := buildIndexer(cfg, rdb, log, checks)

	records, db, err := buildStore(ctx, cfg, log, app, checks)
	if err != nil {
		return nil, err
	}

	wallet, err := buildSigner(ctx, cfg, chain, devLedger, log)
	if err != nil {
		return nil, err
	}

	pipeline := mint.New(wallet, chain,
		policy.NewManager(policy.WithLogger(log)),
		assetname.NewDeriver(
			assetname.WithPrefix(cfg.Mint.AssetPrefix),
			assetname.WithBucket(cfg.Mint.AssetBucket),
		),
		mint.Config{
			Params: tx.Params{
				MinUTxO:  cfg.Mint.MinUTxOLovelace,
				FeeA:     cfg.Mint.FeeA,
				FeeB:     cfg.Mint.FeeB,
				TTLSlots: cfg.Mint.TTLSlots,
			},
			ConfirmTimeout:      cfg.Mint.ConfirmTimeout,
			ConfirmPollInterval: cfg.Mint.ConfirmPollInterval,
			BatchDelay:          cfg.Mint.BatchDelay,
		},
		mint.WithLogger(log),
		mint.WithMetrics(mintmetrics.New()),
		mint.WithTracer(trc),
	)

	appMetrics := metrics.New()
	serviceOpts := []credentialservice.Option{
		credentialservice.WithLedger(chain),
		credentialservice.WithMetrics(appMetrics),
		credentialservice.WithLogger(log),
		credentialservice.WithCodePrefix(cfg.CodePrefix),
	}
	if cfg.Kafka.Brokers != "" {
		prod, err := producer.New(producer.Config{
			Brokers:         cfg.Kafka.Brokers,
			Acks:            cfg.Kafka.Acks,
			Retries:         3,
			DeliveryTimeout: 10 * time.Second,
		}, log)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, prod.Close)
		checks.RegisterOptionalCheck("kafka", prod.Health)
		serviceOpts = append(serviceOpts, credentialservice.WithPublisher(buildPublisher(cfg, db, prod, log, app)))
	} else {
		log.Info("kafka not configured, credential events are not published")
	}
	credentials := credentialservice.New(records, pipeline, serviceOpts...)

	reconciler := verify.New(chain, records,
		verify.WithLogger(log),
		verify.WithMetrics(verifymetrics.New()),
		verify.WithTracer(trc),
		verify.WithSourceTimeout(cfg.Verify.SourceTimeout),
		verify.WithIPFSGateway(cfg.Verify.IPFSGateway),
		verify.WithTrustedPolicies(cfg.Verify.TrustedPolicies...),
	)

	app.router = httptransport.NewRouter(httptransport.Routes{
		Health:      checks,
		Verify:      verifyhandler.New(reconciler, log),
		Mint:        minthandler.New(pipeline, log),
		Credentials: credentialhandler.New(credentials, log),
	}, httptransport.Config{
		AdminToken:     cfg.AdminToken,
		RequestTimeout: cfg.RequestTimeout,
		IssuerTimeout:  cfg.Mint.ConfirmTimeout + cfg.RequestTimeout,
		TrustedProxies: parsePrefixes(cfg.TrustedProxies, log),
		Latency:        appMetrics,
	}, log)

	return app, nil
}

// buildIndexer returns the hosted indexer behind a circuit breaker and, when
// Redis is configured, a lookup cache. Without a base URL it returns an
// in-process ledger, also returned as devLedger for wallet funding.
func buildIndexer(cfg config.Server, rdb *redis.Client, log *slog.Logger, checks *health.Handler) (chain indexer.Client, devLedger *indexer.Ledger) {
	if cfg.Indexer.BaseURL == "" {
		log.Warn("INDEXER_BASE_URL not set, using the in-process ledger")
		devLedger = indexer.NewLedger()
		return devLedger, devLedger
	}

	m := indexermetrics.New()
	upstream := indexer.NewHTTPClient(indexer.HTTPConfig{
		BaseURL:   cfg.Indexer.BaseURL,
		ProjectID: cfg.Indexer.ProjectID,
		Timeout:   cfg.Indexer.Timeout,
	})
	checks.RegisterCheck("indexer", upstream.Health)

	chain = indexer.NewBreaker(upstream, circuit.New("indexer"), log, m)
	if rdb != nil {
		chain = indexer.NewCached(chain, indexer.NewRedisStore(rdb.Client), cfg.Redis.CacheTTL, log, m)
	}
	return chain, nil
}

// buildStore returns the record store and, when Postgres is configured, the
// database handle shared with the event outbox.
func buildStore(ctx context.Context, cfg config.Server, log *slog.Logger, app *application, checks *health.Handler) (store.Store, *sql.DB, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, credential records are kept in memory")
		return store.NewInMemory(), nil, nil
	}

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.New(ctx, dbCfg)
	if err != nil {
		return nil, nil, err
	}
	app.closers = append(app.closers, pool.Close)
	checks.RegisterCheck("postgres", pool.Health)

	applied, err := database.Migrate(ctx, pool.DB(), migrations.FS)
	if err != nil {
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}
	if len(applied) > 0 {
		log.Info("applied migrations", "versions", applied)
	}
	return store.NewPostgres(pool.DB()), pool.DB(), nil
}

// buildPublisher relays events through the Postgres outbox when a database is
// configured and produces directly otherwise.
func buildPublisher(cfg config.Server, db *sql.DB, prod *producer.Producer, log *slog.Logger, app *application) credentialservice.Publisher {
	if db == nil {
		return events.NewPublisher(prod, cfg.Kafka.Topic)
	}

	ob := outbox.NewPostgres(db)
	worker := outbox.NewWorker(ob, prod,
		outbox.WithTopic(cfg.Kafka.Topic),
		outbox.WithPollInterval(cfg.Kafka.OutboxPollInterval),
		outbox.WithRetention(cfg.Kafka.OutboxRetention),
		outbox.WithMetrics(outboxmetrics.New()),
		outbox.WithLogger(log),
	)
	worker.Start()
	app.closers = append(app.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return worker.Stop(ctx)
	})
	return events.NewOutboxPublisher(ob)
}

func buildSigner(ctx context.Context, cfg config.Server, chain indexer.Client, devLedger *indexer.Ledger, log *slog.Logger) (signer.Connector, error) {
	switch cfg.Signer.Mode {
	case "remote":
		if cfg.Signer.RemoteURL == "" {
			return nil, fmt.Errorf("SIGNER_REMOTE_URL is required in remote signer mode")
		}
		return remote.New(remote.Config{
			BaseURL: cfg.Signer.RemoteURL,
			Timeout: cfg.Signer.Timeout,
			Logger:  log,
		}), nil
	case "local", "":
	default:
		return nil, fmt.Errorf("unknown SIGNER_MODE %q", cfg.Signer.Mode)
	}

	opts := []local.Option{local.WithLogger(log)}
	if cfg.Signer.Address != "" {
		opts = append(opts, local.WithAddress(cfg.Signer.Address))
	}

	var (
		wallet *local.Signer
		err    error
	)
	switch {
	case cfg.Signer.SeedHex != "":
		wallet, err = local.New(cfg.Signer.SeedHex, chain, opts...)
	case devLedger != nil:
		log.Warn("SIGNER_SEED_HEX not set, using an ephemeral key on the in-process ledger")
		var priv ed25519.PrivateKey
		if _, priv, err = ed25519.GenerateKey(rand.Reader); err == nil {
			wallet, err = local.NewFromKey(priv, chain, opts...)
		}
	default:
		return nil, fmt.Errorf("SIGNER_SEED_HEX is required with a hosted indexer")
	}
	if err != nil {
		return nil, err
	}

	if devLedger != nil {
		addr, err := wallet.Address(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := devLedger.Fund(addr, devFundingLovelace); err != nil {
			return nil, fmt.Errorf("fund dev wallet: %w", err)
		}
		log.Info("funded dev wallet", "address", addr, "lovelace", devFundingLovelace)
	}
	return wallet, nil
}

func parsePrefixes(cidrs []string, log *slog.Logger) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(c)
		if err != nil {
			log.Warn("ignoring invalid trusted proxy", "cidr", c, "error", err)
			continue
		}
		out = append(out, p)
	}
	return out
}
