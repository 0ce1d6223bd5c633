// Command server runs the workflow execution engine as a single process:
// the Execution Façade, the Trigger Dispatcher and webhook ingestion, the
// Flow Execution Engine with its Progress Tracker and Event Bus, and the
// supporting workflow/credential management surfaces, behind one HTTP
// listener. The teacher splits comparable responsibilities across many
// cmd/services/*/main.go binaries; running single-process without
// distributed/multi-worker execution means one process is the right shape
// here, so this file generalizes the teacher's gateway main (functional
// server construction + signal-driven graceful shutdown) to wire every
// component instead of splitting them up.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/linkflow-ai/linkflow-ai/internal/credential"
	credentialhandlers "github.com/linkflow-ai/linkflow-ai/internal/credential/adapters/http/handlers"
	credentialservice "github.com/linkflow-ai/linkflow-ai/internal/credential/app/service"
	"github.com/linkflow-ai/linkflow-ai/internal/engine"
	"github.com/linkflow-ai/linkflow-ai/internal/facade"
	executionpostgres "github.com/linkflow-ai/linkflow-ai/internal/execution/adapters/repository/postgres"
	"github.com/linkflow-ai/linkflow-ai/internal/node/runtime"
	"github.com/linkflow-ai/linkflow-ai/internal/node/runtime/nodes"
	"github.com/linkflow-ai/linkflow-ai/internal/platform/cache"
	"github.com/linkflow-ai/linkflow-ai/internal/platform/config"
	"github.com/linkflow-ai/linkflow-ai/internal/platform/database"
	"github.com/linkflow-ai/linkflow-ai/internal/platform/health"
	"github.com/linkflow-ai/linkflow-ai/internal/platform/logger"
	"github.com/linkflow-ai/linkflow-ai/internal/platform/metrics"
	"github.com/linkflow-ai/linkflow-ai/internal/trigger"
	"github.com/linkflow-ai/linkflow-ai/pkg/expression"
	"github.com/linkflow-ai/linkflow-ai/pkg/middleware"

	workflowhandlers "github.com/linkflow-ai/linkflow-ai/internal/workflow/adapters/http/handlers"
	workflowpostgres "github.com/linkflow-ai/linkflow-ai/internal/workflow/adapters/repository/postgres"
	workflowservice "github.com/linkflow-ai/linkflow-ai/internal/workflow/app/service"
	workflowrepo "github.com/linkflow-ai/linkflow-ai/internal/workflow/domain/repository"
	"github.com/linkflow-ai/linkflow-ai/internal/workflow/domain/service/domainservice"
)

const serviceName = "workflow-engine"

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log := logger.New(cfg.Logger)
	log.Info("starting workflow execution engine", "version", cfg.Version, "port", cfg.HTTP.Port)

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	defer db.Close()

	redisCache, err := cache.NewRedisCache(cache.Config{
		Host:      cfg.Redis.Host,
		Port:      cfg.Redis.Port,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: serviceName,
	})
	if err != nil {
		log.Warn("redis unavailable, progress tracker falls back to in-memory only", "error", err)
		redisCache = nil
	} else {
		defer redisCache.Close()
	}

	// Credential encryption + resolution.
	credSvc, err := credentialservice.NewCredentialService(cfg.Engine.CredentialEncryptionKey)
	if err != nil {
		log.Fatal("failed to initialize credential service", "error", err)
	}
	credResolver := credential.NewResolver(credSvc)
	trigger.SetCredentialResolver(func(credentialID string, allowedTypes []string) (map[string]interface{}, string, error) {
		cred, err := credSvc.GetCredential(context.Background(), credentialID)
		if err != nil {
			return nil, "", err
		}
		data, err := credSvc.GetCredentialData(context.Background(), credentialID)
		if err != nil {
			return nil, "", err
		}
		return data, string(cred.Type), nil
	})

	// Workflow and execution persistence.
	workflowRepo := workflowpostgres.NewWorkflowRepository(db)
	executionRepo := executionpostgres.NewExecutionRepository(db)

	// Node runtime registry: every file under internal/node/runtime/nodes
	// self-registers into this registry via init(), triggered by importing
	// the package below.
	registry := runtime.Default()
	parser := expression.NewParser()

	eng := engine.New(
		registry,
		credResolver,
		parser,
		executionRepo,
		redisCache,
		cfg.Engine.MaxExecutionConcurrency,
		cfg.Engine.ExecutionRetention,
	)

	eng.EventBus().AddSink(func(ev engine.BusEvent) {
		log.Debug("bus event", "type", ev.Type, "topic", ev.Topic, "executionId", ev.ExecutionID)
	})

	if len(cfg.Kafka.Brokers) > 0 {
		auditSink, err := engine.NewKafkaAuditSink(engine.KafkaAuditConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   "execution-audit",
		})
		if err != nil {
			log.Warn("kafka audit sink unavailable, execution-completed events won't be republished", "error", err)
		} else {
			eng.EventBus().AddSink(auditSink.Sink)
			defer auditSink.Close()
		}
	}

	exec := facade.New(workflowRepo, eng)

	dispatcher := trigger.New(registry, exec, log)
	webhookHandler := trigger.NewWebhookHandler(dispatcher, exec, eng.EventBus())

	subWorkflowRunner := trigger.NewSubWorkflowRunner(workflowRepo, exec)
	nodes.SetSubWorkflowCaller(subWorkflowRunner.AsSubWorkflowCaller())

	// Workflow CRUD: something has to create and activate the workflows
	// the engine above runs. SetRegistrar is what makes Activate/Deactivate
	// start and stop real trigger listeners instead of just flipping a
	// status column.
	workflowDomainSvc := domainservice.NewWorkflowDomainService(workflowRepo)
	workflowSvc := workflowservice.NewWorkflowService(workflowDomainSvc, workflowRepo, log)
	workflowSvc.SetRegistrar(dispatcher)

	// Reconcile: every workflow already active in storage needs its
	// trigger nodes re-registered with this process's dispatcher, since
	// webhook bindings and cron entries live in memory and don't survive a
	// restart.
	reconcileActiveWorkflows(context.Background(), workflowRepo, dispatcher, log)

	facadeHandler := facade.NewHandler(exec, log)
	workflowHandler := workflowhandlers.NewWorkflowHandler(workflowSvc, log)
	credentialHandler := credentialhandlers.NewCredentialHandler(credSvc)
	wsHandler := engine.NewWebSocketHandler(eng.EventBus())

	met := metrics.NewMetrics(serviceName)
	met.Register()

	healthHandler := health.NewHandler(serviceName, cfg.Version)
	healthHandler.AddCheck("database", health.DatabaseChecker(db.HealthCheck))
	if redisCache != nil {
		healthHandler.AddCheck("redis", health.RedisChecker(redisCache.Health))
	}
	healthHandler.AddCheck("memory", health.ResourceChecker(90))

	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(middleware.Recovery(middleware.DefaultRecoveryConfig()))
	router.Use(middleware.Logging(&middleware.LoggingConfig{Logger: log}))
	router.Use(met.HTTPMetricsMiddleware())

	facadeHandler.RegisterRoutes(router)
	webhookHandler.RegisterRoutes(router)
	workflowHandler.RegisterRoutes(router)

	credMux := http.NewServeMux()
	credentialHandler.RegisterRoutes(credMux)
	router.PathPrefix("/api/v1/credentials").Handler(credMux)

	router.HandleFunc("/nodes", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, registry.List())
	}).Methods("GET")

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		resp := healthHandler.Check(r.Context())
		status := http.StatusOK
		if resp.Status != health.StatusHealthy {
			status = http.StatusServiceUnavailable
		}
		w.WriteHeader(status)
		writeJSON(w, resp)
	}).Methods("GET")
	router.Handle("/metrics", met.Handler()).Methods("GET")
	router.Handle("/ws", wsHandler).Methods("GET")

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Error("server error", "error", err)
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Engine.WebhookGracePeriod+25*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
	}

	log.Info("workflow execution engine stopped gracefully")
}

// reconcileActiveWorkflows re-registers every active workflow's trigger
// nodes on process start, since the Dispatcher's bindings (webhook paths,
// cron entries) live only in memory.
func reconcileActiveWorkflows(ctx context.Context, repo workflowrepo.WorkflowRepository, dispatcher *trigger.Dispatcher, log logger.Logger) {
	const pageSize = 100
	for offset := 0; ; offset += pageSize {
		active, err := repo.FindActive(ctx, offset, pageSize)
		if err != nil {
			log.Error("failed to load active workflows for trigger reconciliation", "error", err)
			return
		}
		for _, wf := range active {
			if err := dispatcher.RegisterWorkflow(ctx, wf); err != nil {
				log.Error("failed to reconcile workflow triggers", "workflowId", wf.ID(), "error", err)
			}
		}
		if len(active) < pageSize {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
