package main

import (
	"context"
	"io"

	"github.com/UnendingLoop/watermarker/internal/model"
)

// JobAPIService - сервис задач глазами API: ручки плюс recovery loop
type JobAPIService interface {
	Create(ctx context.Context, data *model.JobCreateData) (*model.Job, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	LoadItem(ctx context.Context, id string, n int) (io.ReadCloser, string, error)
	GetList(ctx context.Context, req *model.ListRequest) ([]model.Job, error)
	Delete(ctx context.Context, id string) error
	ReviveOrphans(ctx context.Context, limit int)
}
