package worker

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/UnendingLoop/watermarker/internal/assets"
	"github.com/UnendingLoop/watermarker/internal/kafka"
	"github.com/UnendingLoop/watermarker/internal/model"
	"github.com/UnendingLoop/watermarker/internal/pipeline"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func jobMessage(t *testing.T, uid string) kafkago.Message {
	key, value, err := kafka.JobMessage{UID: uid, Mode: model.ModeAuto}.Encode()
	require.NoError(t, err)
	return kafkago.Message{Key: key, Value: value}
}

func newJob(names ...string) *model.Job {
	job := &model.Job{UID: uuid.New(), Mode: model.ModeAuto, Status: model.StatusInProgress, Total: len(names)}
	for i, n := range names {
		job.Items = append(job.Items, model.JobItem{Name: n, SourceKey: "src/" + job.UID.String() + "/" + string(rune('0'+i))})
	}
	return job
}

// passBatcher - элемент без данных падает, остальные "обрабатываются" в свое имя
func passBatcher() *mockBatcher {
	return &mockBatcher{
		processFn: func(ctx context.Context, items []model.BatchItem, mode model.Mode, onProgress model.ProgressFunc) ([]model.BatchResult, error) {
			res := make([]model.BatchResult, 0, len(items))
			for i, it := range items {
				r := model.BatchResult{Name: it.Name}
				if len(it.Data) == 0 {
					r.Error = model.ErrDecodeFailure.Error()
				} else {
					r.Succeeded = true
					r.Variant = model.VariantDark
					r.Output = append([]byte("out-"), it.Data...)
				}
				res = append(res, r)
				onProgress(float64(i+1)/float64(len(items))*100, i+1, len(items))
			}
			return res, nil
		},
	}
}

func TestWorker_handle(t *testing.T) {
	id := uuid.New().String()

	tests := []struct {
		name      string
		msg       kafkago.Message
		claim     bool
		claimErr  error
		getErr    error
		wantErr   bool
		wantGet   bool
		wantClaim bool
	}{
		{
			name:    "malformed message is dropped",
			msg:     kafkago.Message{Key: []byte("not-a-uuid")},
			wantErr: false,
		},
		{
			name:      "claim error keeps message",
			msg:       jobMessage(t, id),
			claimErr:  model.ErrCommon500,
			wantErr:   true,
			wantClaim: true,
		},
		{
			name:      "already done or taken",
			msg:       jobMessage(t, id),
			claim:     false,
			wantClaim: true,
		},
		{
			name:      "deleted meanwhile",
			msg:       jobMessage(t, id),
			claim:     true,
			getErr:    model.ErrJobNotFound,
			wantClaim: true,
			wantGet:   true,
		},
		{
			name:      "db down on get",
			msg:       jobMessage(t, id),
			claim:     true,
			getErr:    errors.New("db down"),
			wantErr:   true,
			wantClaim: true,
			wantGet:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var claimed, got bool
			svc := &mockWorkerService{
				claimFn: func(ctx context.Context, gotID string) (bool, error) {
					claimed = true
					require.Equal(t, id, gotID)
					return tt.claim, tt.claimErr
				},
				getFn: func(ctx context.Context, _ string) (*model.Job, error) {
					got = true
					return nil, tt.getErr
				},
			}
			w := NewWorkerInstance(newMemStorage(), svc, &mockBatcher{}, nil, &mockCommitter{}, zerolog.Nop())

			err := w.handle(context.Background(), tt.msg)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tt.wantClaim, claimed)
			require.Equal(t, tt.wantGet, got)
		})
	}
}

func TestWorker_processJob_OK(t *testing.T) {
	job := newJob("a.jpg", "b.jpg", "c.jpg")
	strg := newMemStorage()
	strg.objects[job.Items[0].SourceKey] = []byte("A")
	strg.getErr[job.Items[1].SourceKey] = errors.New("storage down")
	strg.objects[job.Items[2].SourceKey] = []byte("C")

	var progress []float64
	var saved *model.Job
	svc := &mockWorkerService{
		progressFn: func(ctx context.Context, id string, done int, p float64) error {
			require.Equal(t, job.UID.String(), id)
			progress = append(progress, p)
			return nil
		},
		saveFn: func(ctx context.Context, j *model.Job) error {
			saved = j
			return nil
		},
	}

	w := NewWorkerInstance(strg, svc, passBatcher(), nil, &mockCommitter{}, zerolog.Nop())
	require.NoError(t, w.processJob(context.Background(), job))

	require.Len(t, progress, 3)
	require.InDelta(t, 100, progress[2], 1e-9)

	require.NotNil(t, saved)
	require.Equal(t, model.StatusDone, saved.Status)
	require.Equal(t, 3, saved.Done)
	require.Equal(t, float64(100), saved.Progress)
	require.Len(t, saved.ErrMsg, 1)

	require.True(t, saved.Items[0].Succeeded)
	require.Equal(t, svc.ResultKey(job.UID, 0), saved.Items[0].ResultKey)
	require.Equal(t, []byte("out-A"), strg.objects[saved.Items[0].ResultKey])

	require.False(t, saved.Items[1].Succeeded)
	require.Contains(t, saved.Items[1].Error, "source unavailable")
	require.Empty(t, saved.Items[1].ResultKey)

	require.True(t, saved.Items[2].Succeeded)
	require.Equal(t, []byte("out-C"), strg.objects[svc.ResultKey(job.UID, 2)])
}

func TestWorker_processJob_PutFailure(t *testing.T) {
	job := newJob("a.jpg")
	strg := newMemStorage()
	strg.objects[job.Items[0].SourceKey] = []byte("A")
	strg.putErr = errors.New("bucket gone")

	var saved *model.Job
	svc := &mockWorkerService{
		saveFn: func(ctx context.Context, j *model.Job) error {
			saved = j
			return nil
		},
	}

	w := NewWorkerInstance(strg, svc, passBatcher(), nil, &mockCommitter{}, zerolog.Nop())
	require.NoError(t, w.processJob(context.Background(), job))

	require.Equal(t, model.StatusDone, saved.Status)
	require.False(t, saved.Items[0].Succeeded)
	require.Empty(t, saved.Items[0].ResultKey)
	require.Len(t, saved.ErrMsg, 1)
}

func TestWorker_processJob_BatchRejected(t *testing.T) {
	job := newJob("a.jpg")

	var reason string
	svc := &mockWorkerService{
		failFn: func(ctx context.Context, id string, r string) error {
			reason = r
			return nil
		},
		saveFn: func(ctx context.Context, j *model.Job) error {
			t.Fatal("result must not be saved for a rejected batch")
			return nil
		},
	}
	b := &mockBatcher{
		processFn: func(context.Context, []model.BatchItem, model.Mode, model.ProgressFunc) ([]model.BatchResult, error) {
			return nil, model.ErrAssetUnavailable
		},
	}

	w := NewWorkerInstance(newMemStorage(), svc, b, nil, &mockCommitter{}, zerolog.Nop())
	require.NoError(t, w.processJob(context.Background(), job))
	require.Equal(t, model.ErrAssetUnavailable.Error(), reason)
}

func TestWorker_processJob_Cancelled(t *testing.T) {
	job := newJob("a.jpg", "b.jpg")
	ctx, cancel := context.WithCancel(context.Background())

	svc := &mockWorkerService{
		failFn: func(context.Context, string, string) error {
			t.Fatal("cancelled job must be left for recovery")
			return nil
		},
	}
	b := &mockBatcher{
		processFn: func(ctx context.Context, _ []model.BatchItem, _ model.Mode, _ model.ProgressFunc) ([]model.BatchResult, error) {
			cancel()
			return nil, ctx.Err()
		},
	}

	w := NewWorkerInstance(newMemStorage(), svc, b, nil, &mockCommitter{}, zerolog.Nop())
	require.ErrorIs(t, w.processJob(ctx, job), context.Canceled)
}

func TestWorker_StartWorker(t *testing.T) {
	job := newJob("a.jpg")
	strg := newMemStorage()
	strg.objects[job.Items[0].SourceKey] = []byte("A")

	svc := &mockWorkerService{
		claimFn: func(ctx context.Context, id string) (bool, error) {
			if id != job.UID.String() {
				return false, model.ErrCommon500
			}
			return true, nil
		},
		getFn: func(ctx context.Context, _ string) (*model.Job, error) {
			return job, nil
		},
		saveFn: func(ctx context.Context, j *model.Job) error {
			return nil
		},
	}

	queue := make(chan kafkago.Message, 3)
	queue <- jobMessage(t, job.UID.String())
	queue <- kafkago.Message{Key: []byte("garbage")}
	queue <- jobMessage(t, uuid.New().String()) // claim упадет - без коммита
	close(queue)

	cm := &mockCommitter{}
	NewWorkerInstance(strg, svc, passBatcher(), queue, cm, zerolog.Nop()).StartWorker(context.Background())

	require.Equal(t, 2, cm.count())
	require.Equal(t, model.StatusDone, job.Status)
}

func logoPNG(t *testing.T, c color.NRGBA) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, 40, 20))
	for y := 5; y < 15; y++ {
		for x := 5; x < 35; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fixedSettings struct{}

func (fixedSettings) Load(context.Context) (model.Settings, error) {
	return model.DefaultSettings(), nil
}

func TestWorker_WithRealPipeline(t *testing.T) {
	src := assets.NewMemorySource(map[string][]byte{
		model.KeyWatermarkDark:  logoPNG(t, color.NRGBA{A: 255}),
		model.KeyWatermarkLight: logoPNG(t, color.NRGBA{R: 230, G: 230, B: 230, A: 255}),
	})
	p := pipeline.New(assets.NewCache(src, zerolog.Nop()), fixedSettings{}, zerolog.Nop())

	job := newJob("white.png", "broken.jpg")
	strg := newMemStorage()
	strg.objects[job.Items[0].SourceKey] = logoPNG(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	strg.objects[job.Items[1].SourceKey] = []byte("not an image")

	var saved *model.Job
	svc := &mockWorkerService{
		saveFn: func(ctx context.Context, j *model.Job) error {
			saved = j
			return nil
		},
	}

	w := NewWorkerInstance(strg, svc, p, nil, &mockCommitter{}, zerolog.Nop())
	require.NoError(t, w.processJob(context.Background(), job))

	require.True(t, saved.Items[0].Succeeded)
	require.NotEmpty(t, saved.Items[0].Variant)
	require.NotNil(t, saved.Items[0].Brightness)
	_, format, err := image.DecodeConfig(bytes.NewReader(strg.objects[saved.Items[0].ResultKey]))
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)

	require.False(t, saved.Items[1].Succeeded)
	require.NotEmpty(t, saved.Items[1].Error)
}
