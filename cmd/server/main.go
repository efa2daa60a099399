package main

import (
	"context"
	"crypto"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"janua/engine/internal/audit"
	auditrepo "janua/engine/internal/audit/repository"
	authhandler "janua/engine/internal/auth/handler"
	authservice "janua/engine/internal/auth/service"
	"janua/engine/internal/config"
	"janua/engine/internal/db"
	"janua/engine/internal/identity"
	identityrepo "janua/engine/internal/identity/repository"
	"janua/engine/internal/mfa"
	"janua/engine/internal/mfa/backup"
	mfastore "janua/engine/internal/mfa/store"
	"janua/engine/internal/notify"
	"janua/engine/internal/revocation"
	"janua/engine/internal/rotation"
	"janua/engine/internal/security"
	"janua/engine/internal/securityevent"
	"janua/engine/internal/server"
	sessionhandler "janua/engine/internal/session/handler"
	sessionrepo "janua/engine/internal/session/repository"
	"janua/engine/internal/telemetry"
	userrepo "janua/engine/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.NewProviders(ctx, cfg.OTLPEndpoint, cfg.ServiceName, false)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	sqlDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer sqlDB.Close()

	keys, err := buildKeyring(cfg)
	if err != nil {
		log.Fatalf("keys: %v", err)
	}
	tokens := security.NewTokenProvider(keys, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())
	hasher := security.NewHasher(cfg.BcryptCost)

	users := userrepo.NewPostgresRepository(sqlDB)
	identities := identityrepo.NewPostgresRepository(sqlDB)
	sessions := sessionrepo.NewPostgresRepository(sqlDB)
	auditLogs := auditrepo.NewPostgresRepository(sqlDB)
	backupCodes := backup.NewPostgresRepository(sqlDB)

	var challenges mfastore.Store
	var denylist revocation.Denylist
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		challenges = mfastore.NewRedisStore(rdb, "mfa")
		denylist = revocation.NewRedisDenylist(rdb, "denylist")
	} else {
		log.Println("REDIS_ADDR not set; using in-memory challenge store, token revocation disabled")
		challenges = mfastore.NewMemoryStore()
		denylist = revocation.None{}
	}

	var notifier notify.Notifier = notify.Noop{}
	if cfg.SMSAPIKey != "" {
		notifier = notify.NewSMSClient(cfg.SMSAPIKey, cfg.SMSBaseURL, cfg.SMSSender)
	}

	var events securityevent.Emitter = securityevent.Noop{}
	if kafkaEmitter := securityevent.NewKafkaEmitter(cfg.KafkaBrokersList(), cfg.SecurityEventTopic); kafkaEmitter != nil {
		events = kafkaEmitter
		defer kafkaEmitter.Close()
	}

	mfaEngine := mfa.NewEngine(challenges, backupCodes, notifier, cfg.ChallengeTTL(), cfg.MFAMaxAttempts)
	tracker := rotation.NewTracker(tokens, sessions, events)
	verifier := identity.NewPasswordVerifier(users, identities, hasher)
	auditLogger := audit.NewLogger(auditLogs, audit.ClientIP)

	auth := authservice.NewAuthService(
		users, identities, sessions,
		verifier, mfaEngine, tracker, tokens, hasher,
		denylist, auditLogger,
	)
	auth.RequireVerifiedEmail = cfg.RequireEmailVerification

	router := server.NewRouter(server.Deps{
		Config:   cfg,
		Tokens:   tokens,
		Denylist: denylist,
		Auth:     authhandler.New(auth),
		Sessions: sessionhandler.New(auth),
	})

	log.Printf("http server listening on %s", cfg.HTTPAddr)
	if err := server.Run(ctx, cfg.HTTPAddr, router); err != nil {
		log.Fatalf("serve: %v", err)
	}

	// Give fire-and-forget security event emits a chance to flush.
	time.Sleep(securityevent.ShutdownDrainDuration)
	log.Println("http server stopped")
}

func buildKeyring(cfg *config.Config) (*security.Keyring, error) {
	signer, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		return nil, err
	}
	var verifyOnly map[string]crypto.PublicKey
	for kid, pem := range cfg.VerifyKeyPairs() {
		pub, err := security.ParsePublicKey(pem)
		if err != nil {
			return nil, err
		}
		if verifyOnly == nil {
			verifyOnly = make(map[string]crypto.PublicKey)
		}
		verifyOnly[kid] = pub
	}
	return security.NewKeyring(cfg.JWTKeyID, signer, verifyOnly)
}
