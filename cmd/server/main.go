package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/room-lobby/internal/config"
	"github.com/iliyamo/room-lobby/internal/database"
	"github.com/iliyamo/room-lobby/internal/handler"
	"github.com/iliyamo/room-lobby/internal/middleware"
	"github.com/iliyamo/room-lobby/internal/model"
	"github.com/iliyamo/room-lobby/internal/notifier"
	"github.com/iliyamo/room-lobby/internal/policy"
	"github.com/iliyamo/room-lobby/internal/queue"
	"github.com/iliyamo/room-lobby/internal/repository"
	"github.com/iliyamo/room-lobby/internal/router"
	"github.com/iliyamo/room-lobby/internal/service"
	"github.com/iliyamo/room-lobby/internal/store"
	"github.com/iliyamo/room-lobby/internal/tasks"
	"github.com/iliyamo/room-lobby/internal/worker"
)

func main() {
	cfg := config.Load()
	config.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	lobbyCfg := config.LoadLobbyConfig()
	queueCfg := config.LoadQueueConfig()
	log := logrus.WithField("component", "main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rooms, players := openRepositories(ctx, cfg, log)

	rdb := config.NewRedisClient()
	var bus notifier.Bus
	if rdb != nil {
		bus = notifier.NewRedisBus(rdb, config.LoadRedisConfig().KeyPrefix)
		log.Info("change feed: redis pub/sub")
	} else {
		mem := notifier.NewMemoryBus()
		defer mem.Close()
		bus = mem
		log.Warn("redis unavailable: in-process change feed, rate limiting and orphan reaping disabled")
	}

	s := store.New(rooms, players, bus, policy.ByName(lobbyCfg.Policy))
	publisher := service.NewQueuePublisher(queueCfg)
	defer publisher.Close()

	var scheduler *tasks.Scheduler
	if rdb != nil {
		rc := config.LoadRedisConfig()
		redisOpt := asynq.RedisClientOpt{Addr: rc.Addr, Password: rc.Password, DB: rc.DB, TLSConfig: rc.TLSConfig()}
		asynqClient := asynq.NewClient(redisOpt)
		defer asynqClient.Close()
		scheduler = tasks.NewScheduler(asynqClient, lobbyCfg.ReapAfter)

		ws := worker.NewWorkerServer(redisOpt, s)
		go ws.Start()
		defer ws.Shutdown()
	}
	s.SetHooks(lifecycleHooks(scheduler, publisher))

	consumer := queue.NewConsumer(queueCfg)
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logrus.WithError(err).Error("lobby consumer stopped")
		}
	}()

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e)
	h := handler.NewLobbyHandler(s, publisher, cfg.JWTSecret, time.Duration(cfg.PlayerTokenTTLMin)*time.Minute)
	h.Timeout = lobbyCfg.CallTimeout
	router.RegisterLobby(e, h,
		middleware.PlayerAuth(cfg.JWTSecret),
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	go func() {
		addr := ":" + cfg.Port
		log.Infof("listening on %s (env=%s, store=%s, policy=%s)", addr, cfg.Env, cfg.StoreDriver, lobbyCfg.Policy)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if rdb != nil {
		_ = rdb.Close()
	}
}

func openRepositories(ctx context.Context, cfg config.Config, log *logrus.Entry) (repository.Rooms, repository.Players) {
	if cfg.StoreDriver == "memory" {
		mem := repository.NewMemoryRepo()
		return mem.Rooms(), mem.Players()
	}
	db, err := database.Open(ctx, database.Options{
		User:         cfg.DBUser,
		Pass:         cfg.DBPass,
		Host:         cfg.DBHost,
		Port:         cfg.DBPort,
		Name:         cfg.DBName,
		MaxConns:     cfg.DBMaxConns,
		ConnLifetime: cfg.DBConnLifetime,
	})
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	if err := database.Migrate(ctx, db); err != nil {
		log.WithError(err).Fatal("database migration failed")
	}
	return repository.NewRoomRepo(db), repository.NewPlayerRepo(db)
}

// lifecycleHooks schedules an orphan check for every new room and
// announces closed rooms on the broker.  The broker publish runs off
// the request path.
func lifecycleHooks(scheduler *tasks.Scheduler, publisher *service.QueuePublisher) store.Hooks {
	return store.Hooks{
		RoomCreated: func(ctx context.Context, room model.Room) {
			if scheduler == nil {
				return
			}
			if err := scheduler.ScheduleReap(context.WithoutCancel(ctx), room.ID); err != nil {
				logrus.WithField("room_id", room.ID).WithError(err).Warn("orphan check not scheduled")
			}
		},
		RoomClosed: func(ctx context.Context, room model.Room, players []model.Player) {
			go func() {
				pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				_ = publisher.RoomClosed(pubCtx, room, players)
			}()
		},
	}
}
