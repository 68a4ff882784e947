// Package jobpostgres stores async watermark jobs in Postgres
package jobpostgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/UnendingLoop/watermarker/internal/model"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"
)

// StaleAfter - через сколько задача в in_progress считается брошенной
const StaleAfter = "10 minutes"

type PostgresRepo struct {
	DB *dbpg.DB
}

func (p PostgresRepo) Create(ctx context.Context, j *model.Job) error {
	query := `INSERT INTO jobs (uid, mode, status, total, done, progress, items, err_msg, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := p.DB.Master.ExecContext(ctx, query, j.UID, j.Mode, j.Status, j.Total, j.Done, j.Progress, j.Items, j.ErrMsg, j.CreatedAt, j.CreatedAt)
	return err
}

func (p PostgresRepo) Get(ctx context.Context, id string) (*model.Job, error) {
	query := `SELECT uid, mode, status, total, done, progress, items, err_msg, created_at, updated_at
	FROM jobs
	WHERE uid = $1`
	var job model.Job

	err := p.DB.QueryRowContext(ctx, query, id).Scan(&job.UID,
		&job.Mode,
		&job.Status,
		&job.Total,
		&job.Done,
		&job.Progress,
		&job.Items,
		&job.ErrMsg,
		&job.CreatedAt,
		&job.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, model.ErrJobNotFound
		default:
			return nil, err // 500
		}
	}
	return &job, nil
}

// GetList - req должен быть уже провалидирован: Sort и Order подставляются в запрос как есть
func (p PostgresRepo) GetList(ctx context.Context, req *model.ListRequest) ([]model.Job, error) {
	query := fmt.Sprintf(`SELECT uid, mode, status, total, done, progress, err_msg, created_at, updated_at
	FROM jobs
	ORDER BY %s %s
	LIMIT $1
	OFFSET $2`, req.Sort, req.Order)

	offset := (req.Page - 1) * req.Limit

	rows, err := p.DB.QueryContext(ctx, query, req.Limit, offset)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			zlog.Logger.Warn().Err(err).Msg("Error while closing *sql.Rows after scanning")
		}
	}()

	jobs := make([]model.Job, 0, req.Limit)
	for rows.Next() {
		var job model.Job
		if err := rows.Scan(&job.UID,
			&job.Mode,
			&job.Status,
			&job.Total,
			&job.Done,
			&job.Progress,
			&job.ErrMsg,
			&job.CreatedAt,
			&job.UpdatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return jobs, nil
}

func (p PostgresRepo) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM jobs WHERE uid = $1`
	return p.execOne(ctx, query, id)
}

// Claim переводит задачу в in_progress, если она еще не взята или зависла.
// false - задачу уже кто-то обрабатывает или она завершена.
func (p PostgresRepo) Claim(ctx context.Context, id string) (bool, error) {
	query := `UPDATE jobs SET status = $1, updated_at = now()
	WHERE uid = $2
	AND (status = $3 OR (status = $1 AND updated_at < now() - interval '` + StaleAfter + `'))`

	res, err := p.DB.Master.ExecContext(ctx, query, model.StatusInProgress, id, model.StatusCreated)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (p PostgresRepo) UpdateStatus(ctx context.Context, id string, newStat model.Status, errMsg model.StringSlice) error {
	query := `UPDATE jobs SET status = $1, err_msg = $2, updated_at = now() WHERE uid = $3`
	return p.execOne(ctx, query, newStat, errMsg, id)
}

func (p PostgresRepo) UpdateProgress(ctx context.Context, id string, done int, progress float64) error {
	query := `UPDATE jobs SET done = $1, progress = $2, updated_at = now() WHERE uid = $3`
	return p.execOne(ctx, query, done, progress, id)
}

func (p PostgresRepo) SaveResult(ctx context.Context, j *model.Job) error {
	query := `UPDATE jobs SET status = $1, done = $2, progress = $3, items = $4, err_msg = $5, updated_at = $6 WHERE uid = $7`
	return p.execOne(ctx, query, j.Status, j.Done, j.Progress, j.Items, j.ErrMsg, j.UpdatedAt, j.UID)
}

func (p PostgresRepo) FetchOrphans(ctx context.Context, limit int) ([]string, error) {
	query := `SELECT uid
	FROM jobs
	WHERE status IN ($1, $2)
	AND updated_at < now() - interval '` + StaleAfter + `'
	LIMIT $3`

	rows, err := p.DB.QueryContext(ctx, query, model.StatusCreated, model.StatusInProgress, limit)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			zlog.Logger.Warn().Err(err).Msg("Error while closing *sql.Rows after scanning")
		}
	}()

	orphans := make([]string, 0, limit)
	for rows.Next() {
		uid := ""
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		orphans = append(orphans, uid)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return orphans, nil
}

// execOne - UPDATE/DELETE ровно одной строки, 0 строк = задачи нет
func (p PostgresRepo) execOne(ctx context.Context, query string, args ...any) error {
	res, err := p.DB.Master.ExecContext(ctx, query, args...)
	if err != nil {
		return err // 500
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrJobNotFound // 404
	}
	return nil
}
