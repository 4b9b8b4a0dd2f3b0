package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/docgate/internal/docerr"
	"github.com/local/docgate/internal/gate"
	"github.com/local/docgate/internal/metrics"
	"github.com/local/docgate/internal/pipeline"
	"github.com/local/docgate/internal/queue"
	"github.com/local/docgate/internal/store"
)

type Queue interface {
	Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, []byte, error)
	Ack(ctx context.Context, msgID string) error
	AddDLQ(ctx context.Context, payload []byte, reason string) error
	IsCancelled(ctx context.Context, jobID string) (bool, error)
}

type StatusStore interface {
	Set(ctx context.Context, jobID string, st store.Status) error
}

type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, func(), error)
}

type Classifier interface {
	Classify(ctx context.Context, path string) (gate.Verdict, error)
}

type Extractor interface {
	Run(ctx context.Context, path string) (pipeline.Outcome, error)
}

// Archiver receives a copy of every finished job status (S3 in production).
type Archiver interface {
	PutJSON(ctx context.Context, key string, v any) error
}

type Config struct {
	Concurrency int
	JobTimeout  time.Duration
	Block       time.Duration
	Consumer    string
}

// Deps are the collaborators a worker drives. Extractor and Archiver are optional.
type Deps struct {
	Queue     Queue
	Status    StatusStore
	Resolver  Resolver
	Gate      Classifier
	Extractor Extractor
	Archiver  Archiver
}

type Worker struct {
	cfg  Config
	deps Deps
	stop chan struct{}
	wg   sync.WaitGroup
}

func New(cfg Config, deps Deps) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}
	if cfg.Block <= 0 {
		cfg.Block = 2 * time.Second
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "docgate"
	}
	return &Worker{cfg: cfg, deps: deps, stop: make(chan struct{})}
}

func (w *Worker) Start() {
	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.loop(i)
	}
}

// Stop signals the loops and waits for in-flight jobs until ctx is done.
func (w *Worker) Stop(ctx context.Context) error {
	close(w.stop)
	done := make(chan struct{})
	go func() { w.wg.Wait(); close(done) }()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop(id int) {
	defer w.wg.Done()
	consumer := fmt.Sprintf("%s-%d", w.cfg.Consumer, id)
	log.Info().Int("worker", id).Str("consumer", consumer).Msg("dispatcher worker started")
	for {
		select {
		case <-w.stop:
			log.Info().Int("worker", id).Msg("dispatcher worker stopped")
			return
		default:
		}

		msgID, data, err := w.deps.Queue.Dequeue(context.Background(), consumer, w.cfg.Block)
		if err != nil {
			log.Error().Err(err).Msg("queue dequeue error")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if msgID == "" {
			continue
		}

		w.Process(context.Background(), msgID, data)
	}
}

// Process runs one stream message to a terminal state and acks it.
// Failures are written to the DLQ and never retried.
func (w *Worker) Process(ctx context.Context, msgID string, data []byte) {
	defer func() {
		if err := w.deps.Queue.Ack(ctx, msgID); err != nil {
			log.Error().Err(err).Str("msg_id", msgID).Msg("ack failed")
		}
	}()

	job, err := queue.DecodeJob(data)
	if err != nil {
		log.Error().Err(err).Str("msg_id", msgID).Msg("malformed job payload")
		w.deadLetter(ctx, data, err.Error())
		return
	}
	if cancelled, _ := w.deps.Queue.IsCancelled(ctx, job.ID); cancelled {
		log.Warn().Str("job_id", job.ID).Msg("job cancelled before processing; skipping")
		w.setStatus(ctx, job.ID, store.Status{Status: store.StatusCancelled, Ref: job.Ref})
		return
	}

	start := time.Now().UTC()
	w.setStatus(ctx, job.ID, store.Status{Status: store.StatusProcessing, Ref: job.Ref, Start: &start})

	jctx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()
	st, err := w.run(jctx, job)
	end := time.Now().UTC()
	st.Ref, st.Start, st.End = job.Ref, &start, &end

	if err != nil {
		code := docerr.CodeOf(err)
		st.Status = store.StatusFailed
		st.ErrorCode = string(code)
		st.Message = docerr.UserMessage(err)
		log.Warn().Err(err).Str("job_id", job.ID).Str("code", string(code)).Msg("job failed")
		w.setStatus(ctx, job.ID, st)
		w.deadLetter(ctx, data, fmt.Sprintf("%s: %v", code, err))
		return
	}

	st.Status = store.StatusDone
	w.setStatus(ctx, job.ID, st)
	metrics.IncJob(st.Verdict.Legibility.String())
	log.Info().
		Str("job_id", job.ID).
		Str("verdict", st.Verdict.Legibility.String()).
		Float64("score", st.Verdict.Score).
		Dur("elapsed", end.Sub(start)).
		Msg("job done")

	if w.deps.Archiver != nil {
		if err := w.deps.Archiver.PutJSON(ctx, "verdicts/"+job.ID+".json", st); err != nil {
			log.Warn().Err(err).Str("job_id", job.ID).Msg("verdict archive failed")
		}
	}
}

func (w *Worker) run(ctx context.Context, job queue.Job) (store.Status, error) {
	path, cleanup, err := w.deps.Resolver.Resolve(ctx, job.Ref)
	if err != nil {
		return store.Status{}, err
	}
	defer cleanup()

	if job.Extract && w.deps.Extractor != nil {
		out, err := w.deps.Extractor.Run(ctx, path)
		if err != nil {
			return store.Status{}, err
		}
		return store.Status{Verdict: &out.Verdict, Text: out.Text, Pages: out.Pages, Message: out.Message}, nil
	}

	v, err := w.deps.Gate.Classify(ctx, path)
	if err != nil {
		return store.Status{}, err
	}
	st := store.Status{Verdict: &v}
	if !v.Legible() {
		st.Message = pipeline.MessageNotClear
	}
	return st, nil
}

func (w *Worker) setStatus(ctx context.Context, jobID string, st store.Status) {
	if err := w.deps.Status.Set(ctx, jobID, st); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Str("status", st.Status).Msg("status write failed")
	}
}

func (w *Worker) deadLetter(ctx context.Context, data []byte, reason string) {
	metrics.IncJob("dlq")
	if err := w.deps.Queue.AddDLQ(ctx, data, reason); err != nil {
		log.Error().Err(err).Str("reason", reason).Msg("dlq write failed")
	}
}

// DepthSource reports queue lengths.
type DepthSource interface {
	Depths(ctx context.Context) (stream, dlq int64, err error)
}

// PollDepths publishes queue depth gauges every interval until ctx is done.
func PollDepths(ctx context.Context, src DepthSource, every time.Duration) {
	if every <= 0 {
		every = 15 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			qctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			stream, dlq, err := src.Depths(qctx)
			cancel()
			if err != nil {
				log.Debug().Err(err).Msg("queue depth poll failed")
				continue
			}
			metrics.SetQueueDepth("stream", stream)
			metrics.SetQueueDepth("dlq", dlq)
		}
	}
}
