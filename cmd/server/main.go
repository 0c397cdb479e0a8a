package main // Entry point package

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/talkabout/talkabout/internal/broadcast"
	"github.com/talkabout/talkabout/internal/config"
	"github.com/talkabout/talkabout/internal/database"
	"github.com/talkabout/talkabout/internal/handler"
	"github.com/talkabout/talkabout/internal/middleware"
	"github.com/talkabout/talkabout/internal/queue"
	"github.com/talkabout/talkabout/internal/repository"
	"github.com/talkabout/talkabout/internal/router"
	"github.com/talkabout/talkabout/internal/scheduler"
	queue_publisher "github.com/talkabout/talkabout/internal/service"
	"github.com/talkabout/talkabout/internal/waitingroom"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis backs rate limiting, the response cache and the cross-process
	// broadcast channel.  Without it the server still works on a single
	// node: limiting and caching switch off, broadcasts stay in process.
	rdb := config.NewRedisClient()
	var bc broadcast.Broadcaster
	if rdb != nil {
		bc = broadcast.NewRedis(rdb)
	} else {
		log.Println("redis unavailable; using process-local broadcasts, no cache, no rate limit")
		bc = broadcast.NewLocal()
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	events := repository.NewEventRepo(db)
	enrollments := repository.NewEnrollmentRepo(db)
	participants := repository.NewParticipantRepo(db)
	meetings := repository.NewMeetingRepo(db)

	registry := waitingroom.NewRegistry(events, enrollments, participants, bc)
	hub := waitingroom.NewHub(bc)

	notify := scheduler.QueueNotifier(queue_publisher.PublishNotification)
	assembler := scheduler.NewAssembler(events, registry, enrollments, meetings, registry, notify, cfg.JitsiDomain)
	scanner := scheduler.NewScanner(events, enrollments, assembler, registry, notify, tokens,
		cfg.ScanInterval, cfg.ReclaimAfter, cfg.BaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go scanner.Run(ctx)
	go func() {
		if err := queue.StartNotificationConsumer(); err != nil {
			log.Printf("notification consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret)
	router.RegisterPublic(e, handler.NewEventHandler(events), cache)
	router.RegisterParticipant(e,
		handler.NewEnrollmentHandler(events, enrollments, users),
		handler.NewWaitingRoomHandler(registry, hub),
		handler.NewMeetingHandler(meetings),
		cfg.JWTSecret)
	router.RegisterAdmin(e, handler.NewStatsHandler(events, meetings, registry, hub), cfg.JWTSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
