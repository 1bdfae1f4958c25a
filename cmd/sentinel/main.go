// sentinel is the continuous page-change observation engine server: it
// runs the analysis worker pool, the daily checkpoint engine, the
// cron-driven scan/digest scheduler, and a minimal health HTTP surface
// in a single process.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/pagewatch/sentinel/pkg/checkpoint"
	"github.com/pagewatch/sentinel/pkg/clock"
	"github.com/pagewatch/sentinel/pkg/cleanup"
	"github.com/pagewatch/sentinel/pkg/config"
	"github.com/pagewatch/sentinel/pkg/database"
	"github.com/pagewatch/sentinel/pkg/deploypath"
	"github.com/pagewatch/sentinel/pkg/healthapi"
	"github.com/pagewatch/sentinel/pkg/llmshim"
	"github.com/pagewatch/sentinel/pkg/notify"
	"github.com/pagewatch/sentinel/pkg/orchestrator"
	"github.com/pagewatch/sentinel/pkg/postanalysis"
	"github.com/pagewatch/sentinel/pkg/progress"
	"github.com/pagewatch/sentinel/pkg/scheduler"
	"github.com/pagewatch/sentinel/pkg/screenshot"
	"github.com/pagewatch/sentinel/pkg/store"
	"github.com/pagewatch/sentinel/pkg/tier"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v", envPath, err)
		log.Printf("continuing with existing environment variables")
	} else {
		log.Printf("loaded environment from %s", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	gin.SetMode(getEnv("GIN_MODE", "release"))

	log.Printf("starting sentinel")
	log.Printf("config directory: %s", *configDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(*configDir)
	if err != nil {
		log.Fatalf("failed to initialize configuration: %v", err)
	}
	stats := cfg.Stats()
	log.Printf("loaded config: workers=%d max_concurrent=%d match_confidence_threshold=%.2f",
		stats.WorkerCount, stats.MaxConcurrentAnalyses, stats.MatchConfidenceThreshold)

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("failed to load database config: %v", err)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Printf("error closing database client: %v", err)
		}
	}()
	log.Println("connected to PostgreSQL database, migrations applied")

	db := dbClient.DB()

	pages := store.NewPageStore(db)
	analyses := store.NewAnalysisStore(db)
	deploys := store.NewDeployStore(db)
	changes := store.NewChangeStore(db)
	lifecycleEvents := store.NewLifecycleStore(db)
	checkpoints := store.NewCheckpointStore(db)
	suggestions := store.NewSuggestionStore(db)
	feedback := store.NewFeedbackStore(db)

	screenshots := screenshot.NewClient(*cfg.Screenshot)

	pageAuditClient := llmshim.NewPageAuditClient(cfg.LLM.PageAudit)
	quickDiffClient := llmshim.NewQuickDiffClient(cfg.LLM.QuickDiff)
	postAnalysisClient := llmshim.NewPostAnalysisClient(cfg.LLM.PostAnalysis)
	checkpointClient := llmshim.NewCheckpointClient(cfg.LLM.Checkpoint)
	strategyClient := llmshim.NewStrategyClient(cfg.LLM.Strategy)

	composer := progress.NewComposer(changes, suggestions)

	postProcessor := postanalysis.NewProcessor(changes, lifecycleEvents, suggestions, feedback, analyses, deploys,
		composer, postAnalysisClient, cfg.MatchConfidenceThreshold)

	tiers := tier.AllProResolver{}
	credentials := checkpoint.NoneResolver{}

	emailSender := notify.NewHTTPSender(*cfg.Notify)
	notifier := notify.NewService(emailSender, cfg.Notify.FromAddress, cfg.Notify.DashboardURL)

	orch := orchestrator.New(analyses, pages, screenshots, pageAuditClient, tiers, postProcessor,
		*cfg.Screenshot, *cfg.Queue)
	pool := orchestrator.NewWorkerPool(cfg.Queue, orch, analyses)

	deployService := deploypath.NewService(pages, analyses, deploys, changes, lifecycleEvents, screenshots,
		quickDiffClient, tiers, notifier)
	_ = deployService // invoked by the out-of-scope webhook ingress layer once wired

	checkpointEngine := checkpoint.New(cfg.Checkpoint, changes, pages, lifecycleEvents, checkpoints, feedback,
		analyses, composer, checkpointClient, strategyClient, credentials, notifier, cfg.Analytics.RequestTimeout)

	sched, err := scheduler.New(cfg.Scheduler, clock.Real{}, pages, analyses, notifier, screenshots, checkpointEngine)
	if err != nil {
		log.Fatalf("failed to build scheduler: %v", err)
	}

	cleanupService := cleanup.NewService(cfg.Retention, analyses)

	pool.Start(ctx)
	sched.Start(ctx)
	cleanupService.Start(ctx)
	log.Println("orchestrator worker pool, scheduler, and cleanup service started")

	router := healthapi.NewRouter(db, pool)
	srv := &gracefulServer{addr: ":" + httpPort, handler: router}
	srv.start()

	<-ctx.Done()
	log.Println("shutdown signal received, draining in-flight work")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	srv.stop(shutdownCtx)

	cleanupService.Stop()
	sched.Stop()
	pool.Stop()
	log.Println("sentinel stopped")
}
