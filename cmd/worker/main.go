package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/UnendingLoop/watermarker/internal/appcfg"
	"github.com/UnendingLoop/watermarker/internal/assets"
	"github.com/UnendingLoop/watermarker/internal/kafka"
	"github.com/UnendingLoop/watermarker/internal/pipeline"
	"github.com/UnendingLoop/watermarker/internal/repository"
	"github.com/UnendingLoop/watermarker/internal/service"
	"github.com/UnendingLoop/watermarker/internal/settings"
	"github.com/UnendingLoop/watermarker/internal/storage"
	"github.com/UnendingLoop/watermarker/internal/worker"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/dbpg"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/zlog"
)

func main() {
	// инициализировать конфиг/ считать энвы
	cfg, err := appcfg.Load("./.env")
	if err != nil {
		log.Fatalf("Failed to load envs: %s\nExiting app...", err)
	}

	zlog.InitConsole()
	if err := zlog.SetLevel(cfg.LogLevel); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// Listening to interruptions through context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// подключитсья к базе
	dbConn, err := repository.ConnectWithRetries(cfg.PostgresDSN, 5, 10*time.Second)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	// подкллючиться к хранилищу
	strg, err := storage.NewImgStorage(ctx, cfg.Raw, 10*time.Second)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}
	blobs := storage.NewByteBlobs(strg)

	// создаем экземпляр репо и сервиса; публиковать воркеру нечего
	repo := repository.NewPostgresJobRepo(dbConn)
	var svc worker.JobWorkerService = service.NewJobService(repo, NoopPublisher{}, strg, cfg.SourceKeyPrefix, cfg.ResultKeyPrefix)

	// у воркера свой кэш логотипов - после загрузки нового логотипа через API он подхватится по TTL
	cache := assets.NewCache(blobs, zlog.Logger)
	pipe := pipeline.New(cache, settings.NewStore(blobs, zlog.Logger), zlog.Logger)

	// ждем пока кафка раздуплится
	if err := kafka.WaitKafkaReady(ctx, cfg.KafkaBroker, 5*time.Second); err != nil {
		log.Fatalf("Kafka is not available: %v", err)
	}
	if err := kafka.InitKafkaTopics(ctx, cfg.KafkaBroker, 10*time.Second, cfg.KafkaTopic); err != nil {
		log.Fatalf("Failed to init Kafka topics: %v", err)
	}
	// подключиться к кафке как читатель
	queue := make(chan kafkago.Message)
	cons := wbfkafka.NewConsumer([]string{cfg.KafkaBroker}, cfg.KafkaTopic, cfg.KafkaGroupID)
	cons.StartConsuming(ctx, queue, kafka.ConsumeStrategy)

	// Собираем воедино все что нужно воркеру и запускаем его
	w := worker.NewWorkerInstance(strg, svc, pipe, queue, cons, zlog.Logger)
	go w.StartWorker(ctx)

	// Waiting for interruption to stop context to start Graceful shutdown
	<-ctx.Done()

	shutdown(cons, dbConn)
	log.Println("Exiting worker...")
}

func shutdown(cons *wbfkafka.Consumer, dbConn *dbpg.DB) {
	log.Println("Interrupt received!!! Starting shutdown sequence...")

	// Closing Kafka connection:
	if err := cons.Close(); err != nil {
		log.Println("Failed to close Kafka-reader:", err)
	}
	log.Println("Kafka-consumer connection closed.")

	// Closing DB connection
	if err := dbConn.Master.Close(); err != nil {
		log.Println("Failed to close DB-conn correctly:", err)
		return
	}
	log.Println("DBconn closed")
}
