package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/storefront/internal/adapter/discovery"
	"github.com/rl1809/storefront/internal/adapter/handler"
	"github.com/rl1809/storefront/internal/adapter/messaging"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/auth"
	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/port"
	"github.com/rl1809/storefront/internal/telemetry"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.ServiceName, cfg.Version, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)

	// Initialize store
	store, closeStore := openStore(ctx, cfg)

	// Initialize Redis
	var cache port.ProductCache
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		cache = storage.NewRedisAdapter(rdb, cfg.CacheTTL)
		log.Println("connected to redis")
	}

	// Initialize event publisher
	var publisher port.EventPublisher = messaging.LogPublisher{}
	var rabbit *messaging.RabbitMQPublisher
	if cfg.AMQPURL != "" {
		rabbit, err = messaging.NewRabbitMQPublisher(cfg.AMQPURL)
		if err != nil {
			log.Fatalf("failed to connect rabbitmq: %v", err)
		}
		publisher = rabbit
		log.Println("connected to rabbitmq")
	}

	// Initialize services
	opts := []service.Option{
		service.WithMetrics(metrics),
		service.WithTimeout(cfg.PlaceOrderTimeout),
	}
	if cache != nil {
		opts = append(opts, service.WithCache(cache), service.WithCacheRecheckDelay(cfg.CacheRecheckDelay))
	}
	orderService := service.NewOrderService(store, cfg.QueueSize, opts...)
	catalogService := service.NewCatalogService(store, cache)

	// Start worker pool
	var wg sync.WaitGroup
	for i := 0; i < cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			service.RunEventWorker(id, orderService.GetEventQueue(), publisher)
		}(i)
	}
	log.Printf("started %d workers", cfg.WorkerCount)

	verifier := auth.NewVerifier(cfg.JWTSecret)

	// Initialize gRPC server
	grpcServer := handler.NewGRPCServer(handler.NewGRPCHandler(orderService), verifier)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Printf("gRPC server error: %v", err)
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(orderService, catalogService)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler.NewRouter(cfg.ServiceName, httpHandler, verifier, metrics),
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Register with Consul
	var consul *discovery.ConsulClient
	if cfg.ConsulAddr != "" {
		consul, err = discovery.NewConsulClient(cfg.ConsulAddr)
		if err != nil {
			log.Printf("consul unavailable, skipping registration: %v", err)
		} else if err := consul.Register(discovery.ServiceConfig{
			Name: cfg.ServiceName,
			ID:   cfg.ServiceID,
			Addr: cfg.HTTPAddr,
			Tags: []string{"http", cfg.Version},
		}); err != nil {
			log.Printf("consul registration failed: %v", err)
			consul = nil
		}
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	if consul != nil {
		if err := consul.Deregister(cfg.ServiceID); err != nil {
			log.Printf("consul deregistration failed: %v", err)
		}
	}

	// Stop HTTP server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	log.Println("HTTP server stopped")

	// Stop gRPC server
	grpcServer.GracefulStop()
	log.Println("gRPC server stopped")

	// Close event queue and wait for workers
	orderService.Close()
	wg.Wait()
	log.Println("workers stopped")

	// Close connections
	if rabbit != nil {
		rabbit.Close()
	}
	if rdb != nil {
		rdb.Close()
	}
	closeStore()
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Printf("tracer shutdown error: %v", err)
	}
	log.Println("connections closed")
}

// openStore connects the configured store and creates its schema.
func openStore(ctx context.Context, cfg config.Config) (port.Store, func()) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		log.Println("using in-memory store with demo catalog")
		return storage.NewMemoryAdapter(storage.DemoProducts()...), func() {}

	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("failed to connect postgres: %v", err)
		}
		if err := pool.Ping(ctx); err != nil {
			log.Fatalf("failed to ping postgres: %v", err)
		}
		adapter := storage.NewPostgresAdapter(pool)
		if err := adapter.Migrate(ctx); err != nil {
			log.Fatalf("failed to migrate postgres: %v", err)
		}
		log.Println("connected to postgres")
		return adapter, pool.Close

	default:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			log.Fatalf("failed to connect mysql: %v", err)
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("failed to ping mysql: %v", err)
		}
		adapter := storage.NewMySQLAdapter(db)
		if err := adapter.Migrate(ctx); err != nil {
			log.Fatalf("failed to migrate mysql: %v", err)
		}
		log.Println("connected to mysql")
		return adapter, func() { db.Close() }
	}
}
