// Package service provides business-logic for the app
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/UnendingLoop/watermarker/internal/kafka"
	"github.com/UnendingLoop/watermarker/internal/model"
	"github.com/UnendingLoop/watermarker/internal/mwlogger"
	"github.com/UnendingLoop/watermarker/internal/repository"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"
)

type JobService struct {
	repo            repository.JobRepo
	publisher       TaskPublisher
	storage         ImageStorage
	srcKeyPrefix    string
	resultKeyPrefix string
}

func NewJobService(repo repository.JobRepo, pub TaskPublisher, strg ImageStorage, srcPrefix, resPrefix string) *JobService {
	return &JobService{
		repo:            repo,
		publisher:       pub,
		storage:         strg,
		srcKeyPrefix:    srcPrefix,
		resultKeyPrefix: resPrefix,
	}
}

// TaskPublisher - контракт для работы с очередью
type TaskPublisher interface {
	SendWithRetry(ctx context.Context, strategy retry.Strategy, key []byte, v []byte) error
}

// ImageStorage - контракт для работы с хранилищем
type ImageStorage interface {
	Delete(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (output io.ReadCloser, ctype string, err error)
	Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error
}

// SourceKey - ключ n-го исходника задачи
func (c JobService) SourceKey(uid uuid.UUID, n int) string {
	return c.srcKeyPrefix + uid.String() + "/" + strconv.Itoa(n)
}

// ResultKey - ключ n-го результата задачи
func (c JobService) ResultKey(uid uuid.UUID, n int) string {
	return c.resultKeyPrefix + uid.String() + "/" + strconv.Itoa(n) + ".jpg"
}

func (c JobService) Create(ctx context.Context, data *model.JobCreateData) (*model.Job, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	// Валидируем режим и картинки
	mode, err := validateJobCreate(data)
	if err != nil {
		return nil, err
	}

	newJob := &model.Job{
		UID:    uuid.New(),
		Mode:   mode,
		Status: model.StatusCreated,
		Total:  len(data.Images),
		Items:  make(model.JobItems, 0, len(data.Images)),
	}

	// кладем в хранилище исходники
	for n, img := range data.Images {
		key := c.SourceKey(newJob.UID, n)
		if err := c.storage.Put(ctx, key, img.Size, img.ContentType, img.File); err != nil {
			logger.Error().Err(err).Str("key", key).Msg("Failed to save src-image in Storage")
			c.cleanup(ctx, newJob.Items)
			return nil, model.ErrCommon500
		}
		newJob.Items = append(newJob.Items, model.JobItem{Name: img.Name, SourceKey: key, ContentType: img.ContentType})
	}

	// ставим таймстамп
	now := time.Now().UTC()
	newJob.CreatedAt = &now
	newJob.UpdatedAt = &now

	// шлем в базу
	if err := c.repo.Create(ctx, newJob); err != nil {
		logger.Error().Err(err).Msg("Failed to create job in DB")
		c.cleanup(ctx, newJob.Items)
		return nil, model.ErrCommon500
	}

	// кладем в очередь задач(в кафку); если не вышло - задача уже в базе, ее подберет recovery loop
	if err := c.publish(ctx, kafka.JobMessage{UID: newJob.UID.String(), Mode: mode}); err != nil {
		logger.Error().Err(err).Str("job", newJob.UID.String()).Msg("Failed to publish job to task-queue, left for recovery")
	}
	return newJob, nil
}

func (c JobService) publish(ctx context.Context, msg kafka.JobMessage) error {
	key, value, err := msg.Encode()
	if err != nil {
		return err
	}
	return c.publisher.SendWithRetry(ctx, kafka.PublishStrategy, key, value)
}

func (c JobService) GetList(ctx context.Context, req *model.ListRequest) ([]model.Job, error) {
	logger := mwlogger.LoggerFromContext(ctx)
	validateQueryParams(req)

	res, err := c.repo.GetList(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to fetch jobs list from DB")
		return nil, model.ErrCommon500
	}

	return res, nil
}

func (c JobService) Get(ctx context.Context, id string) (*model.Job, error) {
	logger := mwlogger.LoggerFromContext(ctx)
	if err := uuid.Validate(id); err != nil {
		return nil, model.ErrIncorrectID
	}

	res, err := c.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			return nil, err // 404
		}
		logger.Error().Err(err).Msg(fmt.Sprintf("Failed to fetch job %q from DB", id))
		return nil, model.ErrCommon500
	}

	return res, nil
}

// LoadItem returns the watermarked JPEG of the n-th image of a finished job.
func (c JobService) LoadItem(ctx context.Context, id string, n int) (io.ReadCloser, string, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	job, err := c.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if n < 0 || n >= len(job.Items) {
		return nil, "", model.ErrItemNotFound
	}
	if job.Status != model.StatusDone {
		return nil, "", model.ErrResultNotReady
	}
	item := job.Items[n]
	if !item.Succeeded || item.ResultKey == "" {
		return nil, "", fmt.Errorf("%w: %s", model.ErrItemNotFound, item.Error)
	}

	// достаем из хранилища
	data, cType, err := c.storage.Get(ctx, item.ResultKey)
	if err != nil {
		logger.Error().Err(err).Msg(fmt.Sprintf("Failed to fetch result-image %q/%d from Storage", id, n))
		return nil, "", model.ErrCommon500
	}
	return data, cType, nil
}

func (c JobService) Delete(ctx context.Context, id string) error {
	logger := mwlogger.LoggerFromContext(ctx)

	// читаем из базы
	job, err := c.Get(ctx, id)
	if err != nil {
		return err
	}

	// удаляем из базы
	if err := c.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			return err
		}
		logger.Error().Err(err).Msg("Failed to delete job from DB")
		return model.ErrCommon500
	}

	// удаляем из хранилища исходники и результаты - запись уже удалена, так что только логируем
	c.cleanup(ctx, job.Items)
	return nil
}

func (c JobService) cleanup(ctx context.Context, items model.JobItems) {
	logger := mwlogger.LoggerFromContext(ctx)
	for _, it := range items {
		for _, key := range []string{it.SourceKey, it.ResultKey} {
			if key == "" {
				continue
			}
			if err := c.storage.Delete(ctx, key); err != nil {
				logger.Warn().Err(err).Str("key", key).Msg("Failed to delete object from Storage")
			}
		}
	}
}

// ReviveOrphans re-publishes jobs that got stuck in created/in_progress.
func (c JobService) ReviveOrphans(ctx context.Context, limit int) {
	logger := mwlogger.LoggerFromContext(ctx)

	orphans, err := c.repo.FetchOrphans(ctx, limit)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load orphans from DB")
		return
	}

	for _, v := range orphans {
		if err := c.publish(ctx, kafka.JobMessage{UID: v, Revived: true}); err != nil {
			logger.Error().Err(err).Str("job", v).Msg("Failed to publish orphan to queue")
		}
	}
}

//---------------------- методы для воркера

// Claim marks the job in_progress; false means it is done or taken by someone else.
func (c JobService) Claim(ctx context.Context, id string) (bool, error) {
	if err := uuid.Validate(id); err != nil {
		return false, model.ErrIncorrectID
	}
	ok, err := c.repo.Claim(ctx, id)
	if err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Msg("Failed to claim job in DB")
		return false, model.ErrCommon500
	}
	return ok, nil
}

func (c JobService) ReportProgress(ctx context.Context, id string, done int, progress float64) error {
	if err := c.repo.UpdateProgress(ctx, id, done, progress); err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			return err
		}
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Msg("Failed to update job progress in DB")
		return model.ErrCommon500
	}
	return nil
}

func (c JobService) Fail(ctx context.Context, id string, reason string) error {
	if err := c.repo.UpdateStatus(ctx, id, model.StatusFailed, model.StringSlice{reason}); err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			return err
		}
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Msg("Failed to mark job failed in DB")
		return model.ErrCommon500
	}
	return nil
}

func (c JobService) SaveResult(ctx context.Context, job *model.Job) error {
	t := time.Now().UTC()
	job.UpdatedAt = &t
	if err := c.repo.SaveResult(ctx, job); err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			return err
		}
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Msg("Failed to save job result in DB")
		return model.ErrCommon500
	}

	return nil
}
