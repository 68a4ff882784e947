// Package main (in api-subfolder) provides launch of the whole application except worker
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

	"github.com/UnendingLoop/watermarker/internal/appcfg"
	"github.com/UnendingLoop/watermarker/internal/assets"
	"github.com/UnendingLoop/watermarker/internal/kafka"
	"github.com/UnendingLoop/watermarker/internal/mwlogger"
	"github.com/UnendingLoop/watermarker/internal/pipeline"
	"github.com/UnendingLoop/watermarker/internal/repository"
	"github.com/UnendingLoop/watermarker/internal/service"
	"github.com/UnendingLoop/watermarker/internal/settings"
	"github.com/UnendingLoop/watermarker/internal/storage"
	"github.com/UnendingLoop/watermarker/internal/transport"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/ginext"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/zlog"
)

func main() {
	// инициализировать конфиг/ считать энвы
	cfg, err := appcfg.Load("./.env")
	if err != nil {
		log.Fatalf("Failed to load envs: %s\nExiting app...", err)
	}

	// стартуем логгер
	zlog.InitConsole()
	if err := zlog.SetLevel(cfg.LogLevel); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	// готовим заранее слушатель прерываний - контекст для всего приложения
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// подключитсья к базе
	dbConn, err := repository.ConnectWithRetries(cfg.PostgresDSN, 5, 10*time.Second)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	// накатываем миграцию
	if err := repository.MigrateWithRetries(dbConn.Master, "./migrations", 10, 15*time.Second); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	// подключиться к хранилищу
	strg, err := storage.NewImgStorage(ctx, cfg.Raw, 10*time.Second)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}
	blobs := storage.NewByteBlobs(strg)

	// логотипы, настройки и сам пайплайн
	cache := assets.NewCache(blobs, zlog.Logger)
	settingsStore := settings.NewStore(blobs, zlog.Logger)
	pipe := pipeline.New(cache, settingsStore, zlog.Logger)

	// создаем экземпляр репо
	repo := repository.NewPostgresJobRepo(dbConn)

	// ждем пока кафка раздуплится
	if err := kafka.WaitKafkaReady(ctx, cfg.KafkaBroker, 5*time.Second); err != nil {
		log.Fatalf("Kafka is not available: %v", err)
	}
	// подключиться к кафке как продюсер
	if err := kafka.InitKafkaTopics(ctx, cfg.KafkaBroker, 10*time.Second, cfg.KafkaTopic); err != nil {
		log.Fatalf("Failed to init Kafka topics: %v", err)
	}
	pub := wbfkafka.NewProducer([]string{cfg.KafkaBroker}, cfg.KafkaTopic)

	// создаем экземпляры сервисов
	var jobSvc JobAPIService = service.NewJobService(repo, pub, strg, cfg.SourceKeyPrefix, cfg.ResultKeyPrefix)
	adminSvc := service.NewAdminService(blobs, cache, settingsStore)
	wmSvc := service.NewWatermarkService(pipe)

	// сетапим сервер
	engine := newRouter(cfg, transport.Handlers{
		Jobs:      transport.NewJobHandler(jobSvc),
		Watermark: transport.NewWatermarkHandler(wmSvc),
		Admin:     transport.NewAdminHandler(adminSvc),
	}, adminSvc)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           mwlogger.NewMWLogger(engine),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Server launch
	go func() {
		log.Printf("Server running on http://localhost%s\n", srv.Addr)
		err := srv.ListenAndServe()
		if err != nil {
			switch {
			case errors.Is(err, http.ErrServerClosed):
				log.Println("Server gracefully stopping...")
			default:
				log.Printf("Server stopped: %v", err)
				stop()
			}
		}
	}()

	// запускаем фонового воркера для отслеживания подвисших задач
	go recoveryLoop(ctx, jobSvc)

	// ждем отмены контекста для запуска грейсфул закрытия соединений бд и кафки
	<-ctx.Done()

	shutdown(srv, pub, dbConn)
	log.Println("Exiting API...")
}

func recoveryLoop(ctx context.Context, svc JobAPIService) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Logger.Error().Interface("panic", r).Msg("Recovery loop crashed")
		}
	}()

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.ReviveOrphans(ctx, 20)
		}
	}
}

func shutdown(srv *http.Server, pub *wbfkafka.Producer, dbConn *dbpg.DB) {
	log.Println("Interrupt received!!! Starting shutdown sequence...")

	// даем активным запросам доработать
	sdCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sdCtx); err != nil {
		log.Println("Failed to shutdown HTTP-server gracefully:", err)
	}

	// Closing Kafka connection:
	if err := pub.Close(); err != nil {
		log.Println("Failed to close Kafka-writer:", err)
	}
	log.Println("Kafka-producer connection closed.")

	// Closing DB connection
	if err := dbConn.Master.Close(); err != nil {
		log.Println("Failed to close DB-conn correctly:", err)
		return
	}
	log.Println("DBconn closed")
}

// newRouter собирает ginext-движок со всеми ручками и лимитами из конфига
func newRouter(cfg *appcfg.Config, h transport.Handlers, v transport.PasswordVerifier) *ginext.Engine {
	engine := ginext.New(cfg.GinMode)
	transport.RegisterRoutes(engine, h, transport.RouteOptions{
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Verifier:       v,
	})
	return engine
}
