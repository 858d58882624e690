package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	apphandler "loankyc/internal/application/handler"
	appmetrics "loankyc/internal/application/metrics"
	appservice "loankyc/internal/application/service"
	appstore "loankyc/internal/application/store/application"
	apphistory "loankyc/internal/application/store/history"
	clienthandler "loankyc/internal/client/handler"
	clientservice "loankyc/internal/client/service"
	"loankyc/internal/client/store/profile"
	dochandler "loankyc/internal/document/handler"
	docmetrics "loankyc/internal/document/metrics"
	docservice "loankyc/internal/document/service"
	"loankyc/internal/document/storage"
	"loankyc/internal/document/store/document"
	jwttoken "loankyc/internal/jwt_token"
	kychandler "loankyc/internal/kyc/handler"
	kycmetrics "loankyc/internal/kyc/metrics"
	kycservice "loankyc/internal/kyc/service"
	kychistory "loankyc/internal/kyc/store/history"
	kycrecord "loankyc/internal/kyc/store/record"
	"loankyc/internal/kyc/store/statuscache"
	"loankyc/internal/notification"
	"loankyc/internal/platform/config"
	"loankyc/internal/platform/httpserver"
	"loankyc/internal/platform/logger"
	platformmetrics "loankyc/internal/platform/metrics"
	"loankyc/internal/platform/postgres"
	platformredis "loankyc/internal/platform/redis"
	"loankyc/internal/platform/tracing"
	"loankyc/pkg/platform/circuit"
	"loankyc/pkg/platform/httputil"
	authmw "loankyc/pkg/platform/middleware/auth"
	"loankyc/pkg/platform/middleware/request"
	"loankyc/pkg/platform/middleware/requesttime"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	reg := platformmetrics.NewRegistry()

	backing, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backing.close()

	notifier, closeNotifier, err := newNotifier(ctx, cfg.Notifications, log)
	if err != nil {
		return err
	}
	defer closeNotifier()
	sender := notification.NewSender(notifier, notification.WithTimeout(cfg.Notifications.Timeout))
	defer sender.Wait()

	router, err := newRouter(cfg, log, reg, backing, sender)
	if err != nil {
		return err
	}

	srv := httpserver.New(cfg.Server.Addr, router, cfg.Server.ReadHeaderTimeout, cfg.Server.WriteTimeout)
	log.Info("starting loankyc", "addr", cfg.Server.Addr, "postgres", backing.db != nil, "redis", backing.redis != nil)
	return httpserver.Run(ctx, srv, cfg.Server.ShutdownTimeout, log)
}

// newRouter builds the services over the configured stores and mounts every
// route. Backing services in backing may be nil.
func newRouter(cfg config.Config, log *slog.Logger, reg *prometheus.Registry, backing *infra, notifier *notification.Sender) (http.Handler, error) {
	st := newStores(backing.db)
	files, err := storage.NewLocal(cfg.Storage.Path,
		storage.WithMaxSize(cfg.Storage.MaxBytes),
		storage.WithAllowedTypes(cfg.Storage.AllowedTypes...),
	)
	if err != nil {
		return nil, fmt.Errorf("document storage: %w", err)
	}

	documents := docservice.New(st.documents, files, st.kycRecords,
		docservice.WithLogger(log),
		docservice.WithMetrics(docmetrics.New(reg)),
		docservice.WithApplications(st.applications),
	)

	kycOpts := []kycservice.Option{
		kycservice.WithLogger(log),
		kycservice.WithMetrics(kycmetrics.New(reg)),
		kycservice.WithNotifier(notifier),
		kycservice.WithReadinessSources(st.profiles, documents),
		kycservice.WithSubmitReadiness(kycservice.ReadinessMode(strings.ToLower(cfg.KYC.SubmitReadiness))),
		kycservice.WithResubmitRequiresUpload(cfg.KYC.ResubmitRequiresUpload),
	}
	if backing.redis != nil {
		kycOpts = append(kycOpts, kycservice.WithStatusCache(
			statuscache.NewRedis(backing.redis.Client, statuscache.WithTTL(cfg.Redis.StatusTTL))))
	}
	kyc := kycservice.New(st.kycRecords, st.kycHistory, st.kycTx, kycOpts...)

	appOpts := []appservice.Option{
		appservice.WithLogger(log),
		appservice.WithMetrics(appmetrics.New(reg)),
		appservice.WithNotifier(notifier),
	}
	if cfg.Application.RequiresVerifiedKyc {
		appOpts = append(appOpts, appservice.WithVerifiedKycRequired(kyc))
	}
	applications := appservice.New(st.applications, st.appHistory, st.appTx, appOpts...)

	clients := clientservice.New(st.profiles, clientservice.WithLogger(log))

	jwtValidator := jwttoken.NewJWTServiceAdapter(
		jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience))

	r := chi.NewRouter()
	r.Use(request.ID)
	r.Use(chimw.RealIP)
	r.Use(request.Logger(log))
	r.Use(chimw.Recoverer)
	r.Use(platformmetrics.NewHTTP(reg).Middleware)
	r.Use(requesttime.Middleware)

	r.Get("/healthz", backing.health)
	if cfg.Server.MetricsEnabled {
		r.Handle("/metrics", platformmetrics.Handler(reg))
	}

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(jwtValidator, log))
		kychandler.New(kyc, log).Register(r)
		apphandler.New(applications, log).Register(r)
		clienthandler.New(clients, log).Register(r)
		dochandler.New(documents, log, cfg.Storage.MaxBytes+(1<<20)).Register(r)
	})

	return r, nil
}

// infra holds the optional backing services. Both are nil when unconfigured.
type infra struct {
	db    *sql.DB
	redis *platformredis.Client
}

func openInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	out := &infra{}
	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if cfg.Database.MigrateOnStart {
			if err := postgres.Migrate(db, log); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		out.db = db
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	rc, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		out.close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	out.redis = rc
	return out, nil
}

func (i *infra) close() {
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
}

func (i *infra) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true
	if i.db != nil {
		checks["postgres"] = "ok"
		if err := i.db.PingContext(ctx); err != nil {
			checks["postgres"] = err.Error()
			healthy = false
		}
	}
	if i.redis != nil {
		checks["redis"] = "ok"
		if err := i.redis.Health(ctx); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		}
	}
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, map[string]any{"healthy": healthy, "checks": checks})
}

type stores struct {
	kycRecords   kycservice.RecordStore
	kycHistory   kycservice.HistoryStore
	kycTx        kycservice.KycStoreTx
	applications appservice.ApplicationStore
	appHistory   appservice.HistoryStore
	appTx        appservice.ApplicationStoreTx
	profiles     clientservice.ProfileStore
	documents    docservice.DocumentStore
}

func newStores(db *sql.DB) stores {
	if db != nil {
		return stores{
			kycRecords:   kycrecord.NewPostgres(db),
			kycHistory:   kychistory.NewPostgres(db),
			kycTx:        newKycPostgresTx(db),
			applications: appstore.NewPostgres(db),
			appHistory:   apphistory.NewPostgres(db),
			appTx:        newApplicationPostgresTx(db),
			profiles:     profile.NewPostgres(db),
			documents:    document.NewPostgres(db),
		}
	}
	records := kycrecord.NewInMemory()
	history := kychistory.NewInMemory()
	apps := appstore.NewInMemory()
	appHistory := apphistory.NewInMemory()
	return stores{
		kycRecords:   records,
		kycHistory:   history,
		kycTx:        kycservice.NewShardedTx(records, history),
		applications: apps,
		appHistory:   appHistory,
		appTx:        appservice.NewShardedTx(apps, appHistory),
		profiles:     profile.NewInMemory(),
		documents:    document.NewInMemory(),
	}
}

// newNotifier picks the event dispatcher. The returned close func is always
// safe to call.
func newNotifier(ctx context.Context, cfg config.Notifications, log *slog.Logger) (notification.Dispatcher, func(), error) {
	switch cfg.Driver {
	case config.NotifyKafka:
		d, err := notification.NewKafkaDispatcher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, nil, fmt.Errorf("kafka dispatcher: %w", err)
		}
		if err := d.EnsureTopic(ctx, cfg.KafkaPartitions, cfg.KafkaReplication); err != nil {
			d.Close()
			return nil, nil, fmt.Errorf("kafka topic: %w", err)
		}
		return guard(d, "kafka", log), d.Close, nil
	case config.NotifyAMQP:
		d, err := notification.NewAMQPDispatcher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, nil, fmt.Errorf("amqp dispatcher: %w", err)
		}
		return guard(d, "amqp", log), d.Close, nil
	case config.NotifyLog, "":
		return notification.NewLogDispatcher(log), func() {}, nil
	default:
		return nil, nil, errors.New("unknown notification driver " + cfg.Driver)
	}
}

// guard diverts events to the log while the broker keeps failing.
func guard(primary notification.Dispatcher, name string, log *slog.Logger) notification.Dispatcher {
	return notification.NewGuarded(primary, notification.NewLogDispatcher(log),
		circuit.New(name, circuit.WithFailureThreshold(5), circuit.WithCooldown(30*time.Second)), log)
}
