package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/example/storefront/pkg/api"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/discovery"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/service"
)

func main() {
	configPath := flag.String("config", "config/server.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := buildLogger(&cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting storefront",
		zap.String("name", cfg.Server.Name),
		zap.Int("port", cfg.Server.Port))

	store, err := repository.Open(&cfg.MySQL, &cfg.Checkout)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}

	redisRepo := repository.NewRedisRepository(&cfg.Redis)
	defer redisRepo.Close()

	mongoRepo, err := repository.NewMongoRepository(&cfg.MongoDB)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mongoRepo.Close(ctx)
	}()

	ctx := context.Background()
	if err := redisRepo.Ping(ctx); err != nil {
		logger.Warn("Redis connection failed", zap.Error(err))
	} else {
		logger.Info("Redis connected successfully")
	}
	if err := mongoRepo.Ping(ctx); err != nil {
		logger.Warn("MongoDB connection failed", zap.Error(err))
	}

	authService := service.NewAuthService(store, redisRepo, cfg.Session.TTL, logger)
	cartService := service.NewCartService(store, redisRepo, logger)
	orderService := service.NewOrderService(store, cfg.Checkout,
		service.NewLogNotifier(logger), mongoRepo, redisRepo, logger)

	server := api.NewServer(cfg, authService, cartService, orderService, logger)

	var registry *discovery.Registry
	instance := &discovery.Instance{
		Name: cfg.Server.Name,
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}
	if cfg.Etcd.Enabled {
		registry, err = discovery.NewRegistry(&cfg.Etcd)
		if err != nil {
			logger.Fatal("Failed to connect to etcd", zap.Error(err))
		}
		defer registry.Close()

		if err := registry.Register(ctx, instance); err != nil {
			logger.Fatal("Failed to register service", zap.Error(err))
		}
		logger.Info("Service registered in etcd",
			zap.String("name", cfg.Server.Name),
			zap.String("address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)))
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("Received shutdown signal")
	case err := <-serverErr:
		logger.Fatal("Server error", zap.Error(err))
	}

	if registry != nil {
		if err := registry.Deregister(ctx, instance); err != nil {
			logger.Error("Failed to deregister service", zap.Error(err))
		}
	}

	logger.Info("Service stopped")
}

func buildLogger(cfg *config.LogConfig) (*zap.Logger, error) {
	if cfg.Encoding == "console" || cfg.Level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
