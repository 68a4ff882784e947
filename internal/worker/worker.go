// Package worker consumes queued jobs and runs them through the watermarking pipeline
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/UnendingLoop/watermarker/internal/kafka"
	"github.com/UnendingLoop/watermarker/internal/model"
	"github.com/UnendingLoop/watermarker/internal/mwlogger"
	"github.com/UnendingLoop/watermarker/internal/service"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/zlog"
)

// JobWorkerService - методы сервиса задач, нужные воркеру
type JobWorkerService interface {
	Claim(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	ReportProgress(ctx context.Context, id string, done int, progress float64) error
	Fail(ctx context.Context, id string, reason string) error
	SaveResult(ctx context.Context, job *model.Job) error
	ResultKey(uid uuid.UUID, n int) string
}

type Batcher interface {
	ProcessBatch(ctx context.Context, items []model.BatchItem, mode model.Mode, onProgress model.ProgressFunc) ([]model.BatchResult, error)
}

// Committer - *wbfkafka.Consumer
type Committer interface {
	Commit(ctx context.Context, msg kafkago.Message) error
}

type Worker struct {
	storage   service.ImageStorage
	service   JobWorkerService
	pipeline  Batcher
	queue     <-chan kafkago.Message
	committer Committer
	logger    zlog.Zerolog
}

func NewWorkerInstance(strg service.ImageStorage, svc JobWorkerService, p Batcher, q <-chan kafkago.Message, cons Committer, logger zlog.Zerolog) *Worker {
	return &Worker{storage: strg, service: svc, pipeline: p, queue: q, committer: cons, logger: logger}
}

func (w *Worker) StartWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-w.queue:
			if !ok {
				w.logger.Info().Msg("Queue channel closed, stopping worker...")
				return
			}
			if err := w.handle(ctx, msg); err != nil {
				// без коммита: задача останется in_progress и через StaleAfter ее переподнимет recovery loop
				w.logger.Error().Err(err).Str("key", string(msg.Key)).Msg("Task failed")
				continue
			}
			if err := w.committer.Commit(ctx, msg); err != nil {
				w.logger.Error().Err(err).Msg("Failed to commit queue-message")
			}
		}
	}
}

// handle returns an error only when the message should stay uncommitted.
func (w *Worker) handle(ctx context.Context, msg kafkago.Message) error {
	jm, err := kafka.DecodeJobMessage(msg)
	if err != nil {
		// битое сообщение повторно лучше не станет
		w.logger.Warn().Err(err).Msg("Skipping malformed job message")
		return nil
	}

	logger := w.logger.With().Str("job", jm.UID).Bool("revived", jm.Revived).Logger()
	ctx = mwlogger.WithLogger(ctx, logger)

	claimed, err := w.service.Claim(ctx, jm.UID)
	if err != nil {
		return fmt.Errorf("failed to claim job %q: %w", jm.UID, err)
	}
	if !claimed {
		logger.Debug().Msg("Job is done or taken by another worker, skipping")
		return nil
	}

	job, err := w.service.Get(ctx, jm.UID)
	if err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			return nil
		}
		return fmt.Errorf("failed to fetch job %q from DB: %w", jm.UID, err)
	}

	return w.processJob(ctx, job)
}

func (w *Worker) processJob(ctx context.Context, job *model.Job) error {
	logger := mwlogger.LoggerFromContext(ctx)
	id := job.UID.String()

	// достаем исходники; недоступный исходник - ошибка только этого элемента
	items := make([]model.BatchItem, len(job.Items))
	fetchErrs := make([]error, len(job.Items))
	for i, it := range job.Items {
		items[i] = model.BatchItem{Name: it.Name}
		data, err := w.fetch(ctx, it.SourceKey)
		if err != nil {
			logger.Warn().Err(err).Str("key", it.SourceKey).Msg("Failed to fetch source image")
			fetchErrs[i] = err
			continue
		}
		items[i].Data = data
	}

	results, err := w.pipeline.ProcessBatch(ctx, items, job.Mode, func(percent float64, done, _ int) {
		if err := w.service.ReportProgress(ctx, id, done, percent); err != nil {
			logger.Warn().Err(err).Msg("Failed to report progress")
		}
	})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		// предусловия батча (нет логотипов, неизвестный режим) - задача проваливается целиком
		logger.Warn().Err(err).Msg("Batch rejected")
		if fErr := w.service.Fail(ctx, id, err.Error()); fErr != nil {
			return fmt.Errorf("failed to mark job failed: %w after: %v", fErr, err)
		}
		return nil
	}

	job.ErrMsg = nil
	for i, res := range results {
		it := &job.Items[i]
		it.Variant = res.Variant
		it.Orientation = res.Orientation
		it.Brightness = res.Brightness
		it.Succeeded = res.Succeeded
		it.Error = res.Error
		if fetchErrs[i] != nil {
			it.Error = fmt.Sprintf("source unavailable: %v", fetchErrs[i])
		}

		if res.Succeeded {
			key := w.service.ResultKey(job.UID, i)
			if err := w.storage.Put(ctx, key, int64(len(res.Output)), model.JPEG, bytes.NewReader(res.Output)); err != nil {
				logger.Error().Err(err).Str("key", key).Msg("Failed to put result image to storage")
				it.Succeeded = false
				it.Error = "failed to store result"
			} else {
				it.ResultKey = key
				it.ContentType = model.JPEG
			}
		}
		if !it.Succeeded {
			job.ErrMsg = append(job.ErrMsg, it.Name+": "+it.Error)
		}
	}

	job.Status = model.StatusDone
	job.Done = len(results)
	job.Progress = 100
	if err := w.service.SaveResult(ctx, job); err != nil {
		return fmt.Errorf("worker failed to save result to DB: %w", err)
	}

	logger.Info().Int("total", job.Total).Int("failed", len(job.ErrMsg)).Msg("Job finished")
	return nil
}

func (w *Worker) fetch(ctx context.Context, key string) ([]byte, error) {
	r, _, err := w.storage.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer closeFileFlow(r)

	return io.ReadAll(r)
}

func closeFileFlow(res io.ReadCloser) {
	if res == nil {
		return
	}

	if err := res.Close(); err != nil {
		zlog.Logger.Warn().Err(err).Msg("Worker failed to close fileflow")
	}
}
