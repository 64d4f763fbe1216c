package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/handlers"
	"storefront/internal/lock"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	"storefront/internal/middleware"
	"storefront/internal/recommend"
	"storefront/internal/repository"
)

func main() {
	config.Load()

	zlog, err := logger.New(config.AppEnv.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zlog.Sync() }()

	client, err := database.Connect(config.AppEnv.MongoURI)
	if err != nil {
		zlog.Fatal("mongo connect failed", zap.Error(err))
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	db := client.Database(config.AppEnv.DBName)
	zlog.Info("MongoDB connected", zap.String("database", db.Name()))

	if err := database.EnsureProductIndexes(db); err != nil {
		zlog.Warn("product index warning", zap.Error(err))
	}
	if err := database.EnsureOrderIndexes(db); err != nil {
		zlog.Warn("order index warning", zap.Error(err))
	}
	if err := database.EnsureCustomerMetricsIndexes(db); err != nil {
		zlog.Warn("customer metrics index warning", zap.Error(err))
	}

	store := repository.NewGuarded(repository.Mongo{
		Orders:    repository.NewOrders(db).WithTimeout(config.AppEnv.RebuildTimeout),
		Products:  repository.NewProducts(db),
		Customers: repository.NewCustomers(db),
	}, repository.BreakerSettings{Name: "mongo"}, zlog)

	table, err := config.LoadSegmentTable(config.AppEnv.SegmentConfigPath)
	if err != nil {
		zlog.Fatal("segment config invalid", zap.Error(err))
	}

	opts := []recommend.Option{
		recommend.WithLogger(zlog),
		recommend.WithSegmentTable(table),
	}
	if config.AppEnv.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     config.AppEnv.RedisAddr,
			Password: config.AppEnv.RedisPassword,
		})
		defer func() { _ = rdb.Close() }()
		opts = append(opts, recommend.WithLocker(lock.NewRedis(rdb, 30*time.Second)))
		zlog.Info("redis customer lock enabled", zap.String("addr", config.AppEnv.RedisAddr))
	}

	multiplier := config.AppEnv.LTVMultiplier
	svc, err := recommend.New(recommend.Config{
		RefreshInterval: config.AppEnv.MatrixRefreshInterval,
		RebuildTimeout:  config.AppEnv.RebuildTimeout,
		CorpusWindow:    config.AppEnv.CorpusWindow,
		MaxLimit:        config.AppEnv.MaxLimit,
		LifetimeValue: func(totalSpent float64, _ int) float64 {
			return totalSpent * multiplier
		},
	}, store, store, store, opts...)
	if err != nil {
		zlog.Fatal("recommendation service init failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := svc.Run(ctx); err != nil {
			zlog.Error("matrix refresher stopped", zap.Error(err))
		}
	}()

	r := gin.New()
	r.Use(gin.Recovery(), logger.GinMiddleware(zlog), metrics.GinMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "store": store.State().String()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	hopts := handlers.Options{
		DefaultLimit: config.AppEnv.DefaultLimit,
		Timeout:      config.AppEnv.RequestTimeout,
	}

	rec := r.Group("/recommendations")
	{
		rec.GET("/popular", handlers.GetPopularProducts(svc, hopts))
		rec.GET("/products/:id/similar", handlers.GetItemBasedRecommendations(svc, hopts))
		rec.GET("/users/:id", handlers.GetUserBasedRecommendations(svc, hopts))
		rec.GET("/categories/:category", handlers.GetRecommendationsByCategory(svc, hopts))
		rec.GET("/hybrid/:id", handlers.GetHybridRecommendations(svc, hopts))
		rec.GET("/stats", handlers.GetRecommendationStats(svc, hopts))
		rec.GET("/me", middleware.UserAuth(config.AppEnv.JWTSecret), handlers.GetMyRecommendations(svc, hopts))
	}

	admin := r.Group("/admin/api")
	admin.Use(middleware.AdminAuth(config.AppEnv.JWTSecret))
	{
		admin.POST("/recommendations/rebuild", handlers.RebuildMatrix(svc, config.AppEnv.RebuildTimeout))
		admin.GET("/customers/:id/metrics", handlers.GetCustomerMetrics(svc, hopts))
		admin.POST("/customers/:id/metrics/refresh", handlers.RefreshCustomerMetrics(svc, hopts))
	}

	srv := &http.Server{
		Addr:              ":" + config.AppEnv.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("http server shutdown failed", zap.Error(err))
	}
}
