package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/settlementengine/internal/settlement/application"
	"github.com/wyfcoding/settlementengine/internal/settlement/domain"
	"github.com/wyfcoding/settlementengine/internal/settlement/infrastructure"
	"github.com/wyfcoding/settlementengine/internal/settlement/infrastructure/messaging"
	"github.com/wyfcoding/settlementengine/internal/settlement/infrastructure/persistence"
	persistence_mysql "github.com/wyfcoding/settlementengine/internal/settlement/infrastructure/persistence/mysql"
	http_server "github.com/wyfcoding/settlementengine/internal/settlement/interfaces/http"
	"github.com/wyfcoding/settlementengine/pkg/cache"
	"github.com/wyfcoding/settlementengine/pkg/config"
	"github.com/wyfcoding/settlementengine/pkg/db"
	"github.com/wyfcoding/settlementengine/pkg/logger"
	"github.com/wyfcoding/settlementengine/pkg/metrics"
	"github.com/wyfcoding/settlementengine/pkg/middleware"
	"github.com/wyfcoding/settlementengine/pkg/mq"
)

// policyFromConfig 把配置里的字符串策略值解析为引擎策略。
func policyFromConfig(cfg config.EngineConfig) (domain.Policy, error) {
	var firstErr error
	parse := func(name, raw string) decimal.Decimal {
		d, err := decimal.NewFromString(raw)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("parse %s: %w", name, err)
		}
		return d
	}
	p := domain.Policy{
		SafetyMarginLevel:     parse("safety_margin_level", cfg.SafetyMarginLevel),
		MarginCallLevel:       parse("margin_call_level", cfg.MarginCallLevel),
		StopOutLevel:          parse("stop_out_level", cfg.StopOutLevel),
		DefaultCommissionRate: parse("default_commission_rate", cfg.DefaultCommissionRate),
		DailySwapRate:         parse("daily_swap_rate", cfg.DailySwapRate),
	}
	return p, firstErr
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/engine/config.toml", "path to config file")
	flag.Parse()

	// 1. Config
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// 2. Logger
	slogger, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("init logger failed: %v", err)
	}

	// 3. Database
	gdb, err := db.Open(cfg.Database)
	if err != nil {
		log.Fatalf("connect db failed: %v", err)
	}
	if err := gdb.AutoMigrate(&persistence_mysql.SnapshotModel{}, &persistence_mysql.EffectModel{}); err != nil {
		log.Fatalf("migrate db failed: %v", err)
	}

	// 4. Infrastructure
	snapshots := persistence_mysql.NewSnapshotRepo(gdb)
	if cfg.Redis.SnapshotTTL > 0 {
		redisCache, err := cache.New(cfg.Redis)
		if err != nil {
			log.Fatalf("connect redis failed: %v", err)
		}
		defer redisCache.Close()
		snapshots = persistence.NewCachedSnapshotRepo(snapshots, redisCache, time.Duration(cfg.Redis.SnapshotTTL)*time.Second, slogger)
	}
	journal := persistence_mysql.NewEffectJournalRepo(gdb)

	producer := mq.NewProducer(cfg.Kafka)
	defer producer.Close()
	publisher := messaging.NewKafkaEffectPublisher(producer, cfg.Kafka.EffectTopic)

	// 5. Application
	svc := application.NewEngineAppService(
		snapshots,
		journal,
		publisher,
		infrastructure.NewSystemClock(),
		infrastructure.NewSnowflakeIDGenerator(),
		slogger,
	)
	m := metrics.New("settlement")
	svc.SetMetrics(m)
	policy, err := policyFromConfig(cfg.Engine)
	if err != nil {
		log.Fatalf("invalid engine policy config: %v", err)
	}
	svc.SetDefaultPolicy(policy)

	// 6. Interfaces
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logging(slogger))
	r.Use(middleware.Metrics(m))
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, metrics.Handler())
	}
	handler := http_server.NewEngineHandler(svc)
	handler.RegisterRoutes(r.Group(""))

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	priceConsumer := messaging.NewPriceConsumer(mq.NewConsumer(cfg.Kafka, cfg.Kafka.PriceTopic), svc, slogger)

	// 7. Start
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slogger.Info("HTTP server started", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		slogger.Info("price consumer started", "topic", cfg.Kafka.PriceTopic)
		return priceConsumer.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		slogger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
