package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaos-io/rembg/config"
	"github.com/chaos-io/rembg/handler"
	"github.com/chaos-io/rembg/model"
	"github.com/chaos-io/rembg/segment"
	"github.com/chaos-io/rembg/service"
	"github.com/chaos-io/rembg/util"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 构建信息，通过 -ldflags 注入
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "rembg:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg := config.New(configPath)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := util.InitLogger(cfg.Server.Mode); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer util.Sync()

	gin.SetMode(cfg.Server.Mode)

	// 模型只加载一次，常驻内存
	seg, err := segment.New(cfg.Model)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	defer func() {
		if err := seg.Close(); err != nil {
			util.Logger.Warn("failed to close segmenter", zap.Error(err))
		}
	}()

	cache := newCache(&cfg.Cache)
	defer func() {
		_ = cache.Close()
	}()

	scheduler, err := service.NewScheduler(cfg.Jobs, seg)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	scheduler.Start()
	defer func() {
		<-scheduler.Stop().Done()
	}()

	remover := service.NewRemover(seg, cache, cfg.Upload)
	router := handler.NewRouter(cfg, remover, seg, model.BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
		GitBranch: GitBranch,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		util.Logger.Info("server starting",
			zap.String("addr", cfg.Server.Port),
			zap.String("version", Version),
			zap.String("backend", cfg.Model.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case sig := <-quit:
		util.Logger.Info("shutting down server", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	util.Logger.Info("server exited")
	return nil
}

// newCache 连不上 Redis 时退回到不缓存
func newCache(cfg *config.CacheConfig) service.ResultCache {
	if !cfg.Enabled {
		return service.NopCache{}
	}

	rc := service.NewRedisCache(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		util.Logger.Warn("redis unavailable, result cache disabled",
			zap.String("addr", cfg.Addr), zap.Error(err))
		_ = rc.Close()
		return service.NopCache{}
	}

	util.Logger.Info("result cache enabled", zap.String("addr", cfg.Addr), zap.Duration("ttl", cfg.TTL))
	return rc
}
