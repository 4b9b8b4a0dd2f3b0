package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	cfgpkg "github.com/local/docgate/internal/config"
	"github.com/local/docgate/internal/dispatcher"
	"github.com/local/docgate/internal/fetch"
	"github.com/local/docgate/internal/gate"
	"github.com/local/docgate/internal/imagerender"
	"github.com/local/docgate/internal/limiter"
	logpkg "github.com/local/docgate/internal/logger"
	"github.com/local/docgate/internal/metrics"
	"github.com/local/docgate/internal/ocr"
	"github.com/local/docgate/internal/orchestrator"
	"github.com/local/docgate/internal/pipeline"
	"github.com/local/docgate/internal/queue"
	"github.com/local/docgate/internal/statuscheck"
	"github.com/local/docgate/internal/storage"
	"github.com/local/docgate/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := cfgpkg.FromEnv()

	// Init logging
	_ = logpkg.Init(logpkg.FromConfig(cfg.Logging, cfg.Axiom))
	defer logpkg.Close()

	metrics.Init()

	// Orphans from a previous crash
	gate.CleanupStaleWorkdirs(cfg.Gate.TempRoot, cfg.Gate.StaleWorkdirAge)
	fetch.CleanupTemps(cfg.Gate.TempRoot, cfg.Gate.StaleWorkdirAge)

	rasterizer := imagerender.NewRasterizer(nil)
	renders := limiter.New(cfg.Gate.MaxConcurrent)
	g := gate.New(gate.Options{
		TempRoot:        cfg.Gate.TempRoot,
		ParallelMetrics: cfg.Gate.ParallelMetrics,
		Rasterizer:      rasterizer,
		Limiter:         renders,
	})

	// S3 (optional)
	var s3c *storage.S3Client
	var fetchS3 fetch.ObjectDownloader
	if cfg.Storage.Bucket != "" {
		c, err := storage.NewS3Client(context.Background(), cfg.Storage.Bucket, cfg.Storage.Region)
		if err != nil {
			log.Warn().Err(err).Msg("s3 disabled")
		} else {
			s3c, fetchS3 = c, c
		}
	}
	fetcher := fetch.New(nil, fetchS3, cfg.Gate.TempRoot)

	// OCR (optional)
	var extractor *pipeline.Pipeline
	var tessVersion func() string
	tess, err := ocr.NewTesseract(cfg.OCR.Language)
	if err != nil {
		log.Warn().Err(err).Msg("ocr disabled")
	} else {
		defer tess.Close()
		extractor = pipeline.New(g, tess, rasterizer, cfg.OCR.JPEGQuality)
		tessVersion = ocr.Version
	}

	deps := orchestrator.Dependencies{
		Gate:           g,
		Resolver:       fetcher,
		Pages:          rasterizer,
		Metrics:        metrics.Handler(),
		UploadDir:      cfg.Server.UploadDir,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		RequestTimeout: cfg.Gate.RequestTimeout,
	}
	if extractor != nil {
		deps.Extractor = extractor
	}

	// Queue + status store (optional: sync endpoints work without Redis)
	rq, err := queue.NewRedisQueue(cfg.Queue.RedisURL, cfg.Queue.Stream, cfg.Queue.Group)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable; async jobs disabled")
	}
	var rs *store.RedisStatus
	if rq != nil {
		defer rq.Close()
		rs, err = store.NewRedisStatus(cfg.Queue.RedisURL, cfg.Server.ResultTTL)
		if err != nil {
			log.Warn().Err(err).Msg("failed to init redis status store; async jobs disabled")
		}
	}

	checkOpts := statuscheck.Options{TempRoot: cfg.Gate.TempRoot, TesseractVersion: tessVersion, Capacity: renders}
	if s3c != nil {
		checkOpts.S3 = s3c
	}

	ctx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	var disp *dispatcher.Worker
	if rq != nil && rs != nil {
		defer rs.Close()
		deps.Queue = rq
		deps.Status = rs
		checkOpts.Redis = rq

		// Dispatcher worker (optional)
		runDispatcher := os.Getenv("RUN_DISPATCHER")
		if runDispatcher == "" || runDispatcher == "1" || runDispatcher == "true" {
			wd := dispatcher.Deps{Queue: rq, Status: rs, Resolver: fetcher, Gate: g}
			if extractor != nil {
				wd.Extractor = extractor
			}
			if s3c != nil {
				wd.Archiver = s3c
			}
			host, _ := os.Hostname()
			disp = dispatcher.New(dispatcher.Config{
				Concurrency: cfg.Queue.Workers,
				JobTimeout:  cfg.Gate.RequestTimeout,
				Block:       2 * time.Second,
				Consumer:    "docgate-" + host,
			}, wd)
			disp.Start()
			go dispatcher.PollDepths(ctx, rq, 15*time.Second)
		}
	}
	deps.Checker = statuscheck.New(checkOpts)

	orch := orchestrator.New(deps)
	mux := http.NewServeMux()
	orch.RegisterRoutes(mux)

	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		log.Info().Msgf("HTTP server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if disp != nil {
		if err := disp.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("dispatcher did not drain in time")
		}
	}
	fmt.Println("shutdown complete")
}
