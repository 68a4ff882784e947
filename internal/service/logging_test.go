package service

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/UnendingLoop/watermarker/internal/model"
	"github.com/UnendingLoop/watermarker/internal/mwlogger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// ошибки инфраструктуры должны попадать в логгер из контекста запроса
func TestServices_LogToRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := mwlogger.WithLogger(context.Background(), zerolog.New(&buf))

	a, blobs, _ := newAdmin()
	blobs.getErr = errors.New("down")
	_, err := a.HasPassword(ctx)
	require.ErrorIs(t, err, model.ErrCommon500)
	require.Contains(t, buf.String(), "Failed to read admin password")

	buf.Reset()
	repo := &mockRepo{
		claimFn: func(ctx context.Context, id string) (bool, error) { return false, errors.New("db") },
	}
	_, err = JobService{repo: repo}.Claim(ctx, uuid.NewString())
	require.ErrorIs(t, err, model.ErrCommon500)
	require.Contains(t, buf.String(), "Failed to claim job in DB")

	buf.Reset()
	require.ErrorIs(t, mapPipelineErr(ctx, errors.New("boom")), model.ErrCommon500)
	require.Contains(t, buf.String(), "Watermark pipeline failed")
	require.Contains(t, buf.String(), `"level":"error"`)
}
