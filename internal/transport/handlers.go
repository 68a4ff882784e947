// Package transport provides methods for processing requests from endpoints
package transport

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/UnendingLoop/watermarker/internal/imageproc"
	"github.com/UnendingLoop/watermarker/internal/model"
	"github.com/UnendingLoop/watermarker/internal/mwlogger"
	"github.com/wb-go/wbf/ginext"
)

type JobHandler struct {
	service JobService
}

type JobService interface {
	Create(ctx context.Context, data *model.JobCreateData) (*model.Job, error)
	Delete(ctx context.Context, id string) error                                   // удалить как в базе, так и в хранилище
	Get(ctx context.Context, id string) (*model.Job, error)                        // статус и прогресс
	LoadItem(ctx context.Context, id string, n int) (io.ReadCloser, string, error) // прям скачать результат
	GetList(ctx context.Context, req *model.ListRequest) ([]model.Job, error)      // получить список
}

func NewJobHandler(svc JobService) *JobHandler {
	return &JobHandler{
		service: svc,
	}
}

func (h JobHandler) SimplePinger(ctx *ginext.Context) {
	ctx.JSON(200, map[string]string{"message": "pong"})
}

func (h JobHandler) Create(ctx *ginext.Context) {
	images, err := collectUploads(ctx)
	if err != nil {
		respondErr(ctx, err)
		return
	}
	defer closeUploads(images)

	res, err := h.service.Create(ctx.Request.Context(), &model.JobCreateData{
		Mode:   ctx.PostForm("mode"),
		Images: images,
	})
	if err != nil {
		respondErr(ctx, err)
		return
	}

	ctx.JSON(201, res)
}

func (h JobHandler) GetAllJobs(ctx *ginext.Context) {
	var req model.ListRequest

	if err := ctx.ShouldBindQuery(&req); err != nil {
		ctx.JSON(400, map[string]string{"error": "failed to parse query-params"})
		return
	}

	res, err := h.service.GetList(ctx.Request.Context(), &req)
	if err != nil {
		respondErr(ctx, err)
		return
	}

	ctx.JSON(200, res)
}

func (h JobHandler) GetJob(ctx *ginext.Context) {
	res, err := h.service.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondErr(ctx, err)
		return
	}

	ctx.JSON(200, res)
}

// LoadItem отдает результат n-й картинки; ?preview=N - уменьшенная копия, вписанная в NxN
func (h JobHandler) LoadItem(ctx *ginext.Context) {
	id := ctx.Param("id")
	n, err := strconv.Atoi(ctx.Param("n"))
	if err != nil {
		respondErr(ctx, fmt.Errorf("%w: item number must be an integer", model.ErrIncorrectQuery))
		return
	}

	preview := 0
	if raw := ctx.Query("preview"); raw != "" {
		if preview, err = strconv.Atoi(raw); err != nil || preview <= 0 || preview > 2048 {
			respondErr(ctx, fmt.Errorf("%w: preview must be in 1..2048", model.ErrIncorrectQuery))
			return
		}
	}

	res, cType, err := h.service.LoadItem(ctx.Request.Context(), id, n)
	if err != nil {
		respondErr(ctx, err)
		return
	}
	defer closeFileFlow(res)

	logger := mwlogger.LoggerFromContext(ctx.Request.Context())

	if preview > 0 {
		data, err := io.ReadAll(res)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to read result image")
			respondErr(ctx, model.ErrCommon500)
			return
		}
		thumb, err := imageproc.Preview(data, preview, 85)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to build preview")
			respondErr(ctx, model.ErrCommon500)
			return
		}
		ctx.Data(200, model.JPEG, thumb)
		return
	}

	ctx.Writer.Header().Set("Content-Type", cType)
	ctx.Writer.WriteHeader(200)
	if n, err := io.Copy(ctx.Writer, res); err != nil {
		logger.Error().Err(err).Int64("written", n).Str("job", id).Msg("Failed to write response")
	}
}

func (h JobHandler) Delete(ctx *ginext.Context) {
	id := ctx.Param("id")
	if err := h.service.Delete(ctx.Request.Context(), id); err != nil {
		respondErr(ctx, err)
		return
	}

	ctx.Status(204)
}
