package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"dispatchflow/audit"
	"dispatchflow/auth"
	"dispatchflow/chat"
	"dispatchflow/config"
	"dispatchflow/cost"
	"dispatchflow/db"
	"dispatchflow/dispatch"
	"dispatchflow/field"
	"dispatchflow/logger"
	"dispatchflow/notify"
	"dispatchflow/quote"
	"dispatchflow/supplier"
)

// auditStore adapts the in-tx ledger to the read-only HTTP surface.
type auditStore struct {
	pool   *pgxpool.Pool
	ledger *audit.Ledger
}

func (a auditStore) ListByDispatch(ctx context.Context, dispatchID string) ([]audit.Event, error) {
	return a.ledger.ListByDispatch(ctx, a.pool, dispatchID)
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	log := logger.New("api")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Errorf("load config: %v", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		log.Errorf("bootstrap database pool: %v", err)
		os.Exit(1)
	}
	defer pool.Close()

	var publisher notify.Publisher = notify.Nop{}
	if cfg.MQTT.Broker != "" {
		mq, err := notify.NewMQTTPublisher(cfg.MQTT)
		if err != nil {
			log.Errorf("connect mqtt broker: %v", err)
			os.Exit(1)
		}
		defer mq.Close()
		publisher = mq
	}
	emitter := notify.NewEmitter(publisher, logger.New("notify"))

	ledger := audit.NewLedger()
	rooms := chat.NewStore()

	authService := auth.NewService(auth.NewRepository(pool), cfg.Auth.JWTSecret)
	supplierRepo := supplier.NewRepository(pool)
	supplierSvc := supplier.NewService(supplierRepo)

	dispatchSvc := dispatch.NewService(pool, dispatch.NewRepository(pool), supplierRepo, rooms, ledger, emitter)
	quoteSvc := quote.NewService(pool, quote.NewRepository(pool), ledger).
		WithWindow(time.Duration(cfg.Quote.ExpiresMinutes) * time.Minute)

	fieldRepo := field.NewRepository(pool)
	fieldSvc := field.NewService(pool, fieldRepo, rooms, ledger, emitter, cfg.Field.TokenSalt).
		WithDefaultExpiry(cfg.Field.SessionExpiresMinutes).
		WithLinkBase(cfg.Field.LinkBase)

	costSvc := cost.NewService(pool, cost.NewRepository(pool), fieldRepo, supplierRepo, ledger, emitter)

	server := &Server{
		log:        log,
		identity:   authService,
		suppliers:  supplierSvc,
		dispatches: dispatchSvc,
		quotes:     quoteSvc,
		field:      fieldSvc,
		costs:      costSvc,
		auditLog:   auditStore{pool: pool, ledger: ledger},
	}

	log.Infof("listening on %s", cfg.HTTP.Addr)
	if err := http.ListenAndServe(cfg.HTTP.Addr, server.routes()); err != nil {
		log.Errorf("http server: %v", err)
		os.Exit(1)
	}
}
