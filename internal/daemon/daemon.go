package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/uuid"
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/Raydrick/docship/internal/config"
	"github.com/Raydrick/docship/internal/events"
	"github.com/Raydrick/docship/internal/history"
	"github.com/Raydrick/docship/internal/logfields"
	"github.com/Raydrick/docship/internal/metrics"
	"github.com/Raydrick/docship/internal/pipeline"
	"github.com/Raydrick/docship/internal/publish"
	"github.com/Raydrick/docship/internal/trigger"
	"github.com/Raydrick/docship/internal/version"
	"github.com/Raydrick/docship/internal/workspace"
)

// Daemon runs the pipeline continuously: webhook and scheduled triggers feed
// a bounded queue, workers execute matrix runs against fresh checkouts, and
// results land in the history store and on the event bus.
type Daemon struct {
	mu         sync.RWMutex
	cfg        *config.Config
	configPath string

	queue     *RunQueue
	scheduler *Scheduler
	watcher   *ConfigWatcher
	server    *Server

	store    *history.Store
	events   *events.Publisher
	recorder metrics.Recorder
	registry *prom.Registry
}

// New assembles a daemon from a validated configuration. cfg.Daemon must be set.
func New(cfg *config.Config, configPath string) (*Daemon, error) {
	if cfg.Daemon == nil {
		return nil, fmt.Errorf("daemon: configuration has no daemon section")
	}

	registry := prom.NewRegistry()
	d := &Daemon{
		cfg:        cfg,
		configPath: configPath,
		recorder:   metrics.NewPrometheusRecorder(registry),
		registry:   registry,
	}

	store, err := history.Open(cfg.Daemon.HistoryDB)
	if err != nil {
		return nil, fmt.Errorf("daemon: open history store: %w", err)
	}
	d.store = store

	if nc := cfg.Daemon.NATS; nc != nil {
		pub, err := events.NewPublisher(nc.URL, nc.Subject)
		if err != nil {
			// Event publishing is best-effort; the daemon still runs without it.
			slog.Warn("Run event publisher unavailable", logfields.Error(err))
		} else {
			d.events = pub
		}
	}

	d.queue = NewRunQueue(cfg.Daemon.QueueSize, cfg.Daemon.Workers, d, d.recorder)

	sched, err := NewScheduler()
	if err != nil {
		return nil, err
	}
	d.scheduler = sched

	d.server = NewServer(d, cfg.Daemon.Listen)
	return d, nil
}

// Start brings up the queue, scheduler, config watcher, and HTTP server.
func (d *Daemon) Start(ctx context.Context) error {
	cfg := d.Config()

	d.queue.Start(ctx)

	if cfg.Daemon.Schedule != "" {
		interval, err := time.ParseDuration(cfg.Daemon.Schedule)
		if err != nil {
			return fmt.Errorf("daemon: parse schedule: %w", err)
		}
		if err := d.scheduler.ScheduleInterval(interval, d.enqueueScheduled); err != nil {
			return err
		}
		d.scheduler.Start()
	}

	watcher, err := NewConfigWatcher(d.configPath, d)
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	d.watcher = watcher

	return d.server.Start()
}

// Stop shuts everything down in reverse start order.
func (d *Daemon) Stop(ctx context.Context) error {
	var firstErr error

	if err := d.server.Stop(ctx); err != nil {
		firstErr = err
	}
	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := d.scheduler.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	d.queue.Stop()
	d.events.Close()
	if err := d.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Config returns the current configuration.
func (d *Daemon) Config() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// ReloadConfig swaps the active configuration. Queue size, worker count, and
// listen address changes take effect on the next restart.
func (d *Daemon) ReloadConfig(cfg *config.Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
}

// EnqueueWebhook queues a run for a webhook delivery.
func (d *Daemon) EnqueueWebhook(branch, commit string) (*Job, error) {
	job := &Job{
		ID:        uuid.NewString(),
		Type:      JobTypeWebhook,
		Branch:    branch,
		Commit:    commit,
		CreatedAt: time.Now(),
	}
	if err := d.queue.Enqueue(job); err != nil {
		return nil, err
	}
	return job, nil
}

// enqueueScheduled queues a run against the release branch on the schedule tick.
func (d *Daemon) enqueueScheduled() {
	cfg := d.Config()
	job := &Job{
		ID:        uuid.NewString(),
		Type:      JobTypeScheduled,
		Branch:    cfg.Deploy.ReleaseBranch,
		CreatedAt: time.Now(),
	}
	if err := d.queue.Enqueue(job); err != nil {
		slog.Error("Failed to enqueue scheduled run", logfields.Error(err))
	}
}

// Run executes one queued job: fresh checkout, matrix run, persist, publish.
// It implements the queue's Runner interface.
func (d *Daemon) Run(ctx context.Context, job *Job) (string, error) {
	cfg := d.Config()

	ws := workspace.NewManager("")
	if err := ws.Create(); err != nil {
		return "", err
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			slog.Warn("Failed to clean up job workspace", logfields.Error(err))
		}
	}()

	srcDir, trig, err := d.checkout(ctx, ws, cfg, job)
	if err != nil {
		return "", err
	}

	d.events.RunStarted(job.ID, trig.Branch, trig.Commit)

	result, err := pipeline.RunMatrix(ctx, pipeline.MatrixOptions{
		Config:    cfg,
		Trigger:   trig,
		SourceDir: srcDir,
		Workspace: ws,
		Recorder:  d.recorder,
		Logger:    slog.Default(),
		Version:   version.Version,
	})
	if err != nil {
		return "", err
	}

	outcome := result.Outcome()
	d.recordHistory(ctx, result)
	d.events.RunFinished(job.ID, trig.Branch, trig.Commit, string(outcome), anyDeployed(result))

	if result.Failed() {
		return string(outcome), fmt.Errorf("run failed with outcome %s", outcome)
	}
	return string(outcome), nil
}

// checkout clones the configured repository at the job's branch into the
// workspace and resolves the trigger context from the checkout's HEAD.
func (d *Daemon) checkout(ctx context.Context, ws *workspace.Manager, cfg *config.Config, job *Job) (string, *trigger.Context, error) {
	srcDir, err := ws.CreateSubdir("checkout")
	if err != nil {
		return "", nil, err
	}

	cloneOpts := &git.CloneOptions{
		URL:          cfg.Daemon.RepoURL,
		SingleBranch: true,
	}
	if job.Branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(job.Branch)
	}
	// Source and pages usually live in the same repository, so the deploy
	// credentials are reused. Public repositories clone fine without them.
	if auth, err := publish.ResolveAuth(cfg.Deploy.Auth); err == nil {
		cloneOpts.Auth = auth
	} else {
		slog.Debug("Cloning without credentials", logfields.Error(err))
	}

	repo, err := git.PlainCloneContext(ctx, srcDir, false, cloneOpts)
	if err != nil {
		return "", nil, fmt.Errorf("clone %s: %w", cfg.Daemon.RepoURL, err)
	}

	head, err := repo.Head()
	if err != nil {
		return "", nil, fmt.Errorf("resolve checkout HEAD: %w", err)
	}

	commit := job.Commit
	if commit == "" {
		commit = head.Hash().String()
	}
	branch := job.Branch
	if branch == "" {
		branch = head.Name().Short()
	}
	return srcDir, &trigger.Context{Branch: branch, Commit: commit, Source: string(job.Type)}, nil
}

// recordHistory persists every matrix entry result.
func (d *Daemon) recordHistory(ctx context.Context, result *pipeline.MatrixResult) {
	for _, res := range result.Results {
		report := res.Report
		if report == nil {
			continue
		}
		reportJSON, err := json.Marshal(report)
		if err != nil {
			slog.Warn("Failed to marshal run report for history", logfields.Error(err))
			reportJSON = nil
		}
		rec := history.RunRecord{
			ID:            report.RunID,
			Branch:        report.Branch,
			Commit:        report.Commit,
			MatrixVersion: report.MatrixVersion,
			Outcome:       string(report.Outcome),
			Deployed:      report.Deployed,
			ArtifactHash:  report.ArtifactHash,
			StartedAt:     report.StartedAt,
			DurationMS:    report.Duration().Milliseconds(),
			ReportJSON:    string(reportJSON),
		}
		if err := d.store.InsertRun(ctx, rec); err != nil {
			slog.Warn("Failed to persist run record",
				logfields.RunID(report.RunID), logfields.Error(err))
			continue
		}

		stages := make([]history.StageRecord, 0, len(report.StageOrder))
		for _, name := range report.StageOrder {
			stages = append(stages, history.StageRecord{
				RunID:      report.RunID,
				Stage:      string(name),
				Result:     string(report.StageResults[name]),
				DurationMS: report.StageDurations[name].Milliseconds(),
			})
		}
		if err := d.store.InsertStages(ctx, stages); err != nil {
			slog.Warn("Failed to persist stage records",
				logfields.RunID(report.RunID), logfields.Error(err))
		}
	}
}

func anyDeployed(result *pipeline.MatrixResult) bool {
	for _, res := range result.Results {
		if res.Report != nil && res.Report.Deployed {
			return true
		}
	}
	return false
}
