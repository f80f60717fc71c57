package http

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/config"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/infra/crypto"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/infra/db"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/infra/egress"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/infra/forward"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/infra/idempotency"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/infra/jsonl"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/infra/keymutex"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/infra/keys/soft"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/infra/keys/vault"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/infra/ledgerfile"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/infra/policyopa"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/infra/ratelimit"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/infra/vaultclient"
	"github.com/Maverick0351a/signet-protocol-core-console/internal/usecase"
)

// NewServer builds every component named by cfg. Call Close on the returned server to
// release its files and connections; on error everything opened so far is released.
func NewServer(ctx context.Context, cfg config.Config, logger *slog.Logger) (srv *Server, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	var closers []func() error
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
		}
	}()

	canon, err := crypto.NewCanonicalizer(crypto.Mode(cfg.CanonicalMode))
	if err != nil {
		return nil, err
	}

	var store *db.Store
	if cfg.Storage == config.StoragePostgres || cfg.IdempotencyBackend == config.IdempotencyPostgres {
		store, err = db.NewStore(cfg.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		closers = append(closers, store.Close)
	}

	var redisClient redis.UniversalClient
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		closers = append(closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping failed", "addr", cfg.RedisAddr, "error", err)
		}
		redisClient = client
	}

	var (
		ledger domain.ReceiptLedger
		audit  domain.AuditLedger
	)
	switch cfg.Storage {
	case config.StoragePostgres:
		ledger = db.NewReceiptRepository(store.DB, canon, nil)
		audit = db.NewLedgerEntryRepository(store.DB)
	default:
		receiptsLog, err := jsonl.Open(cfg.ReceiptsPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStorageWrite, err)
		}
		closers = append(closers, receiptsLog.Close)
		auditLog, err := jsonl.Open(cfg.LedgerPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStorageWrite, err)
		}
		closers = append(closers, auditLog.Close)
		ledger = ledgerfile.NewReceiptStore(receiptsLog, canon, logger)
		audit = ledgerfile.NewAuditStore(auditLog)
	}

	var idemStore domain.IdempotencyStore
	switch cfg.IdempotencyBackend {
	case config.IdempotencyRedis:
		idemStore, err = idempotency.NewRedisStore(redisClient, cfg.IdempotencyTTL())
		if err != nil {
			return nil, err
		}
	case config.IdempotencyPostgres:
		idemStore = db.NewIdempotencyRepository(store.DB)
	default:
		idemLog, err := jsonl.Open(cfg.IdempotencyPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStorageWrite, err)
		}
		closers = append(closers, idemLog.Close)
		mem, err := idempotency.OpenMemoryStore(idemLog, cfg.IdempotencyMaxKeys, logger)
		if err != nil {
			return nil, err
		}
		idemStore = mem
	}

	policy, err := newEgressPolicy(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	privateKey := cfg.PrivateKeyB64
	if cfg.KeyFromVault() {
		vc, err := vaultclient.New(cfg.VaultAddr, cfg.VaultToken)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrSigningKey, err)
		}
		privateKey, err = vault.LoadPrivateKey(ctx, vc, cfg.Env, cfg.KID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrSigningKey, err)
		}
	}
	keys, err := soft.NewManager(soft.Options{
		PrivateKey:     privateKey,
		KID:            cfg.KID,
		AllowEphemeral: cfg.EphemeralKeyAllowed(),
		JWKSCacheTTL:   cfg.JWKSCacheTTL(),
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	var forwarder usecase.Forwarder = forward.Recorder{}
	if cfg.ForwardEnabled {
		forwarder = forward.NewHTTPForwarder(cfg.ForwardTimeout(), logger)
	}

	var quota domain.ClientQuota
	if policy := cfg.QuotaPolicy(); policy.Enabled() {
		if redisClient != nil {
			quota, err = ratelimit.NewRedisQuota(redisClient, policy, nil)
		} else {
			quota, err = ratelimit.NewMemoryQuota(policy, ratelimit.MemoryOptions{MaxKeys: cfg.RateLimitMaxKeys})
		}
		if err != nil {
			return nil, err
		}
	}

	submit := &usecase.SubmitExchange{
		Ledger:    ledger,
		Audit:     audit,
		Policy:    policy,
		Hasher:    crypto.NewHasher(canon),
		Forwarder: forwarder,
		Idempotency: &usecase.IdempotencyCache{
			Store:  idemStore,
			Locks:  keymutex.New(),
			Logger: logger,
		},
		NewTraceID:   uuid.NewString,
		MaxBodyBytes: cfg.MaxExchangeBodyBytes,
		Logger:       logger,
	}

	logger.Info("signet core configured",
		"storage", cfg.Storage,
		"idempotency", cfg.IdempotencyBackend,
		"policy", policy.Name(),
		"canonical", canon.Mode(),
		"kid", keys.KID(),
		"ephemeral_key", keys.Ephemeral(),
		"forward_enabled", cfg.ForwardEnabled,
	)

	srv = NewServerWithDeps(cfg, ServerDeps{
		Submit:      submit,
		Chain:       &usecase.GetChain{Ledger: ledger},
		Export:      &usecase.ExportChain{Ledger: ledger, Keys: keys, Signer: crypto.ExportSigner{Keys: keys}},
		JWKS:        &usecase.GetJWKS{Keys: keys},
		Quota:       quota,
		Logger:      logger,
	})
	srv.closers = closers
	return srv, nil
}

func newEgressPolicy(ctx context.Context, cfg config.Config, logger *slog.Logger) (domain.EgressPolicy, error) {
	allowlist := []string(cfg.HELAllowlist)
	if cfg.PolicyEngine != config.PolicyEngineOPA {
		return egress.NewEngine(allowlist), nil
	}
	var (
		engine *policyopa.Engine
		err    error
	)
	if cfg.PolicyRegoPath != "" {
		engine, err = policyopa.NewEngineFromFile(ctx, cfg.PolicyRegoPath, allowlist, logger)
	} else {
		engine, err = policyopa.NewEngine(ctx, allowlist, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("load egress policy: %w", err)
	}
	logger.Info("egress policy loaded", "engine", engine.Name(), "module_hash", engine.ModuleHash())
	return engine, nil
}
