// Package orchestrator drives one digest run end to end. It routes the
// run down the short path (synchronous, text-only classification) or
// the long path (capture, queue, worker pool) and records every
// stage's outcome in the run manifest.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/capture"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/classifier"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/digest"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/distribution"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/fetcher"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/pkg/logger"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/queue"
	"github.com/DeepThoughts123/genai-tweet-digest-serverless-sub001/internal/store"
)

// Run statuses recorded in the manifest.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusNoContent = "no_content"
	StatusFailed    = "failed"
)

// Modes a run can execute in.
const (
	ModeShort = "short"
	ModeLong  = "long"
	ModeAuto  = "auto"
)

// Trigger is the payload the scheduler (or a manual invocation) hands
// the orchestrator.
type Trigger struct {
	Source string `json:"source"` // "scheduled" or "manual"
	Mode   string `json:"mode,omitempty"`
}

// FetchStage pulls the week's tweets.
type FetchStage interface {
	Fetch(ctx context.Context, handles []string) (*fetcher.Result, error)
}

// CaptureStage screenshots tweets and enqueues their artifacts.
type CaptureStage interface {
	Run(ctx context.Context, runID string, tweets []*fetcher.Tweet) *capture.Result
}

// Distributor sends the rendered digest.
type Distributor interface {
	Distribute(ctx context.Context, d *digest.Digest) (*distribution.Report, error)
}

// Options configures run routing and deadlines.
type Options struct {
	Mode                 string
	VisualCaptureEnabled bool
	// LongPathThreshold is the expected tweet count at or above which
	// auto mode picks the long path.
	LongPathThreshold int
	MaxAccounts       int
	// ExpectedPerAccount sizes the auto-mode estimate; usually the
	// per-account fetch cap.
	ExpectedPerAccount int
	MaxProcessingTime  time.Duration
	CompletionPoll     time.Duration
	ClassifierVersion  string
	// ShortConcurrency bounds the short path's classification fan-out.
	ShortConcurrency int
}

// Orchestrator wires the pipeline stages together for one run.
type Orchestrator struct {
	opts Options

	objects     store.ObjectStore
	runs        store.RunStore
	records     store.ClassificationStore
	queue       queue.Queue
	fetch       FetchStage
	capture     CaptureStage
	classifier  *classifier.Classifier
	assembler   *digest.Assembler
	renderer    *digest.Renderer
	distributor Distributor

	now   func() time.Time
	sleep func(time.Duration)
	newID func() string
}

// New creates an orchestrator. capture and q may be nil when the long
// path is disabled.
func New(opts Options, objects store.ObjectStore, runs store.RunStore, records store.ClassificationStore, q queue.Queue, fetch FetchStage, capt CaptureStage, c *classifier.Classifier, assembler *digest.Assembler, distributor Distributor) *Orchestrator {
	if opts.Mode == "" {
		opts.Mode = ModeAuto
	}
	if opts.LongPathThreshold <= 0 {
		opts.LongPathThreshold = 50
	}
	if opts.ExpectedPerAccount <= 0 {
		opts.ExpectedPerAccount = 10
	}
	if opts.MaxProcessingTime <= 0 {
		opts.MaxProcessingTime = 14 * time.Minute
	}
	if opts.CompletionPoll <= 0 {
		opts.CompletionPoll = 10 * time.Second
	}
	if opts.ShortConcurrency <= 0 {
		opts.ShortConcurrency = 4
	}
	return &Orchestrator{
		opts:        opts,
		objects:     objects,
		runs:        runs,
		records:     records,
		queue:       q,
		fetch:       fetch,
		capture:     capt,
		classifier:  c,
		assembler:   assembler,
		renderer:    digest.NewRenderer(),
		distributor: distributor,
		now:         time.Now,
		sleep:       time.Sleep,
		newID:       uuid.NewString,
	}
}

// accountsConfig is the object-store artifact listing the curated
// handles.
type accountsConfig struct {
	InfluentialAccounts []string `json:"influential_accounts"`
}

// LoadAccounts reads the curated handle list. An empty list is a fatal
// configuration error.
func (o *Orchestrator) LoadAccounts(ctx context.Context) ([]string, error) {
	body, err := o.objects.Get(ctx, store.AccountsKey)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load accounts: %w", err)
	}
	var cfg accountsConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, fmt.Errorf("orchestrator: parse accounts: %w", err)
	}
	if len(cfg.InfluentialAccounts) == 0 {
		return nil, errors.New("orchestrator: account list is empty")
	}
	handles := cfg.InfluentialAccounts
	if o.opts.MaxAccounts > 0 && len(handles) > o.opts.MaxAccounts {
		handles = handles[:o.opts.MaxAccounts]
	}
	return handles, nil
}

// resolveMode picks the execution mode for this run. A mode carried in
// the trigger wins over configuration; auto resolves from the capture
// flag and the expected tweet volume.
func (o *Orchestrator) resolveMode(trigger Trigger, accountCount int) string {
	mode := o.opts.Mode
	if trigger.Mode != "" {
		mode = trigger.Mode
	}
	if mode != ModeAuto {
		return mode
	}
	if !o.opts.VisualCaptureEnabled {
		return ModeShort
	}
	if accountCount*o.opts.ExpectedPerAccount >= o.opts.LongPathThreshold {
		return ModeLong
	}
	return ModeShort
}

// Run executes one pipeline run and returns its manifest. The manifest
// is persisted as stages complete, so a crashed run leaves an audit
// trail.
func (o *Orchestrator) Run(ctx context.Context, trigger Trigger) (*store.RunRecord, error) {
	rec := &store.RunRecord{
		RunID:     o.newID(),
		Trigger:   trigger.Source,
		Status:    StatusRunning,
		StartedAt: o.now().UTC().Format(time.RFC3339),
		Counts:    make(map[string]int),
	}
	log := logger.ForRun(rec.RunID)

	handles, err := o.LoadAccounts(ctx)
	if err != nil {
		return o.fail(ctx, rec, "accounts", err)
	}
	rec.Mode = o.resolveMode(trigger, len(handles))
	o.persist(ctx, rec)
	log.Info("run starting", "mode", rec.Mode, "trigger", trigger.Source, "accounts", len(handles))

	deadline := o.now().Add(o.opts.MaxProcessingTime)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	fetched, err := o.fetch.Fetch(runCtx, handles)
	if err != nil {
		return o.fail(ctx, rec, "fetch", err)
	}
	rec.Counts["tweets_fetched"] = len(fetched.Tweets)
	rec.Counts["handles_skipped"] = len(fetched.SkippedHandles)
	rec.Counts["accounts_failed"] = len(fetched.AccountErrors)
	o.stage(rec, "fetch", "ok", nil)
	o.persist(ctx, rec)

	if len(fetched.Tweets) == 0 {
		log.Info("no tweets fetched, run yields no content")
		return o.finish(ctx, rec, StatusNoContent)
	}

	var records map[string]*store.ClassificationRecord
	if rec.Mode == ModeLong {
		records, err = o.runLongPath(runCtx, rec, fetched.Tweets)
	} else {
		records, err = o.runShortPath(runCtx, rec, fetched.Tweets)
	}
	if err != nil {
		// The long path spans two stages; the error names the one that
		// actually broke.
		stage := "classification"
		var se *stageError
		if errors.As(err, &se) {
			stage, err = se.stage, se.err
		}
		return o.fail(ctx, rec, stage, err)
	}
	rec.Counts["tweets_classified"] = len(records)
	o.stage(rec, "classification", "ok", nil)
	o.persist(ctx, rec)

	d, err := o.assembler.Build(runCtx, rec.RunID, o.opts.ClassifierVersion, fetched.Tweets, records)
	if err != nil {
		// Every record was Uncertain or missing: nothing to ship.
		log.Info("no classified content for digest", "error", err)
		o.stage(rec, "digest", "skipped", nil)
		return o.finish(ctx, rec, StatusNoContent)
	}

	archiveHTML, err := o.renderer.HTML(d, "")
	if err != nil {
		return o.fail(ctx, rec, "digest", err)
	}
	digestKey, err := digest.Save(runCtx, o.objects, rec.RunID, d, archiveHTML)
	if err != nil {
		return o.fail(ctx, rec, "digest", err)
	}
	rec.DigestKey = digestKey
	o.stage(rec, "digest", "ok", nil)
	o.persist(ctx, rec)

	report, err := o.distributor.Distribute(runCtx, d)
	if report != nil {
		rec.Counts["recipients_attempted"] = report.Attempted
		rec.Counts["recipients_succeeded"] = report.Sent
		rec.Counts["recipients_bounced"] = report.Bounced
		rec.Counts["recipients_failed"] = report.Failed
	}
	if err != nil {
		return o.fail(ctx, rec, "distribution", err)
	}
	o.stage(rec, "distribution", "ok", nil)

	return o.finish(ctx, rec, StatusCompleted)
}

// runShortPath classifies synchronously with bounded fan-out.
func (o *Orchestrator) runShortPath(ctx context.Context, rec *store.RunRecord, tweets []*fetcher.Tweet) (map[string]*store.ClassificationRecord, error) {
	records, failures := classifier.ClassifyAll(ctx, o.classifier, o.records, tweets, o.opts.ShortConcurrency)
	rec.Counts["classification_failed"] = len(failures)
	if len(records) == 0 && len(failures) > 0 {
		return nil, fmt.Errorf("orchestrator: every classification failed (%d tweets)", len(failures))
	}
	return records, nil
}

// runLongPath captures and enqueues artifacts, then waits for the
// worker pool to drain the queue or for the deadline, and collects
// whatever records exist.
func (o *Orchestrator) runLongPath(ctx context.Context, rec *store.RunRecord, tweets []*fetcher.Tweet) (map[string]*store.ClassificationRecord, error) {
	if o.capture == nil || o.queue == nil {
		return nil, &stageError{stage: "capture", err: errors.New("orchestrator: long path requires capture and queue")}
	}

	capResult := o.capture.Run(ctx, rec.RunID, tweets)
	rec.Counts["capture_failed"] = len(capResult.Failed)
	rec.Counts["tweets_enqueued"] = len(capResult.Enqueued)
	if len(capResult.Enqueued) == 0 {
		return nil, &stageError{stage: "capture", err: errors.New("orchestrator: capture enqueued nothing")}
	}
	o.stage(rec, "capture", "ok", nil)
	o.persist(ctx, rec)

	o.awaitClassification(ctx, rec.RunID, capResult.Enqueued)

	// The run deadline may have fired during the wait; the final read
	// still has to land so a partial digest can ship.
	readCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return o.records.GetBatch(readCtx, tweetIDs(tweets), o.opts.ClassifierVersion)
}

// awaitClassification polls until the queue is drained and every
// enqueued tweet has a record, or the run deadline passes. A partial
// result is not an error: the digest is built from whatever was
// classified.
func (o *Orchestrator) awaitClassification(ctx context.Context, runID string, enqueued []string) {
	log := logger.ForRun(runID)
	for {
		if ctx.Err() != nil {
			log.Warn("classification wait ended at deadline")
			return
		}

		depth, err := o.queue.Depth(ctx)
		if err != nil {
			log.Warn("queue depth check failed", "error", err)
		} else if depth == 0 {
			records, err := o.records.GetBatch(ctx, enqueued, o.opts.ClassifierVersion)
			if err == nil && len(records) >= len(enqueued) {
				log.Info("classification complete", "records", len(records))
				return
			}
			if err == nil && len(records) > 0 {
				// Queue is empty but records are short: the remainder
				// dead-lettered. Proceed with what exists.
				log.Warn("queue drained with partial records",
					"records", len(records), "enqueued", len(enqueued))
				return
			}
		}

		select {
		case <-ctx.Done():
		case <-o.after(o.opts.CompletionPoll):
		}
	}
}

func (o *Orchestrator) after(d time.Duration) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		o.sleep(d)
		close(ch)
	}()
	return ch
}

// stageError carries the manifest stage an error belongs to, for paths
// that span more than one stage.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func tweetIDs(tweets []*fetcher.Tweet) []string {
	ids := make([]string, len(tweets))
	for i, t := range tweets {
		ids[i] = t.ID
	}
	return ids
}

func (o *Orchestrator) stage(rec *store.RunRecord, name, status string, err error) {
	s := store.StageRecord{Name: name, Status: status}
	if err != nil {
		s.Error = err.Error()
	}
	rec.Stages = append(rec.Stages, s)
}

func (o *Orchestrator) persist(ctx context.Context, rec *store.RunRecord) {
	if err := o.runs.Put(ctx, rec); err != nil {
		logger.Warn("orchestrator: manifest write failed", "run_id", rec.RunID, "error", err)
	}
}

func (o *Orchestrator) fail(ctx context.Context, rec *store.RunRecord, stage string, err error) (*store.RunRecord, error) {
	logger.ForRun(rec.RunID).Error("run failed", "stage", stage, "error", err)
	o.stage(rec, stage, "failed", err)
	rec.Status = StatusFailed
	rec.FailedStage = stage
	rec.CompletedAt = o.now().UTC().Format(time.RFC3339)
	o.persist(ctx, rec)
	return rec, fmt.Errorf("orchestrator: stage %s: %w", stage, err)
}

func (o *Orchestrator) finish(ctx context.Context, rec *store.RunRecord, status string) (*store.RunRecord, error) {
	rec.Status = status
	rec.CompletedAt = o.now().UTC().Format(time.RFC3339)
	o.persist(ctx, rec)
	logger.ForRun(rec.RunID).Info("run finished", "status", status, "mode", rec.Mode)
	return rec, nil
}
