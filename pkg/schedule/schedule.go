// Package schedule runs recurring maintenance jobs (documentation crawls,
// catalog synchronization) either in process or from the system crontab.
package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jingkaihe/agentkit/pkg/logger"
	"github.com/jingkaihe/agentkit/pkg/telemetry"
	"github.com/jingkaihe/agentkit/pkg/validation"
)

// Task names the work a job performs
type Task string

// Supported tasks
const (
	TaskDocsCrawl   Task = "docs-crawl"
	TaskCatalogSync Task = "catalog-sync"
)

// Job is a scheduled task
type Job struct {
	Name string `mapstructure:"name" json:"name" validate:"required,artifactname"`
	// Spec is a five field cron expression or a descriptor such as "@daily"
	Spec string   `mapstructure:"spec" json:"spec" validate:"required"`
	Task Task     `mapstructure:"task" json:"task" validate:"required,oneof=docs-crawl catalog-sync"`
	Args []string `mapstructure:"args" json:"args,omitempty"`
}

// Handler performs a task
type Handler func(ctx context.Context, job Job) error

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Parse parses a cron expression
func Parse(spec string) (cron.Schedule, error) {
	s, err := parser.Parse(spec)
	if err != nil {
		return nil, errors.Wrapf(validation.ErrValidation, "invalid cron expression %q: %v", spec, err)
	}
	return s, nil
}

// DecodeJobs converts the raw schedule.jobs configuration value
func DecodeJobs(raw any) ([]Job, error) {
	if raw == nil {
		return nil, nil
	}
	var jobs []Job
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &jobs,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, errors.Wrap(err, "invalid schedule.jobs")
	}

	seen := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		if err := validation.Struct(&job); err != nil {
			return nil, errors.Wrapf(err, "job %q", job.Name)
		}
		if _, err := Parse(job.Spec); err != nil {
			return nil, errors.Wrapf(err, "job %q", job.Name)
		}
		if seen[job.Name] {
			return nil, errors.Errorf("duplicate job %q", job.Name)
		}
		seen[job.Name] = true
	}
	return jobs, nil
}

// Next returns the next n activation times of spec after from
func Next(spec string, from time.Time, n int) ([]time.Time, error) {
	s, err := Parse(spec)
	if err != nil {
		return nil, err
	}
	times := make([]time.Time, 0, n)
	for t := from; len(times) < n; {
		t = s.Next(t)
		if t.IsZero() {
			break
		}
		times = append(times, t)
	}
	return times, nil
}

// CrontabLine renders a system crontab entry running job through binary.
// Interval descriptors ("@every 1h") have no crontab equivalent.
func CrontabLine(job Job, binary string) (string, error) {
	if _, err := Parse(job.Spec); err != nil {
		return "", err
	}
	if strings.HasPrefix(job.Spec, "@every") {
		return "", errors.Errorf("job %q: %q cannot be expressed in a crontab", job.Name, job.Spec)
	}
	return fmt.Sprintf("%s %s schedule exec %s # agentkit:%s", job.Spec, shellQuote(binary), job.Name, job.Name), nil
}

func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t'\"$`;&|<>()*?\\") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Runner executes jobs on their schedules
type Runner struct {
	jobs     []Job
	handlers map[Task]Handler
	location *time.Location
	mu       sync.Mutex
	running  map[string]bool
}

// Option configures a Runner
type Option func(*Runner)

// WithLocation sets the time zone schedules are evaluated in
func WithLocation(loc *time.Location) Option {
	return func(r *Runner) {
		r.location = loc
	}
}

// NewRunner returns a runner for jobs. Every job's task needs a handler.
func NewRunner(jobs []Job, handlers map[Task]Handler, opts ...Option) (*Runner, error) {
	for _, job := range jobs {
		if _, err := Parse(job.Spec); err != nil {
			return nil, errors.Wrapf(err, "job %q", job.Name)
		}
		if handlers[job.Task] == nil {
			return nil, errors.Errorf("job %q: no handler for task %q", job.Name, job.Task)
		}
	}
	r := &Runner{jobs: jobs, handlers: handlers, location: time.Local, running: map[string]bool{}}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Jobs returns the configured jobs
func (r *Runner) Jobs() []Job {
	return r.jobs
}

// Find returns the job called name
func (r *Runner) Find(name string) (Job, error) {
	for _, job := range r.jobs {
		if job.Name == name {
			return job, nil
		}
	}
	return Job{}, errors.Errorf("unknown job %q", name)
}

// Run schedules every job and blocks until ctx is cancelled. Running jobs
// are waited for before it returns; a job still running when its next
// activation comes is skipped for that activation.
func (r *Runner) Run(ctx context.Context) error {
	if len(r.jobs) == 0 {
		return errors.New("no jobs configured")
	}

	log := logger.G(ctx)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(r.location),
		cron.WithLogger(cronLogger{log}),
		cron.WithChain(cron.Recover(cronLogger{log}), cron.SkipIfStillRunning(cronLogger{log})),
	)

	for _, job := range r.jobs {
		id, err := c.AddFunc(job.Spec, func() {
			_ = r.Exec(ctx, job)
		})
		if err != nil {
			return errors.Wrapf(err, "failed to schedule %q", job.Name)
		}
		log.WithField("job", job.Name).WithField("next", c.Entry(id).Next).Info("job scheduled")
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	log.Info("scheduler stopped")
	return nil
}

// Exec runs job once, now
func (r *Runner) Exec(ctx context.Context, job Job) (err error) {
	handler := r.handlers[job.Task]
	if handler == nil {
		return errors.Errorf("no handler for task %q", job.Task)
	}

	r.mu.Lock()
	if r.running[job.Name] {
		r.mu.Unlock()
		return errors.Errorf("job %q is already running", job.Name)
	}
	r.running[job.Name] = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.running, job.Name)
		r.mu.Unlock()
	}()

	ctx = logger.WithFields(ctx, logrus.Fields{"job": job.Name, "task": job.Task})
	ctx, end := telemetry.Start(ctx, "schedule.exec", attribute.String("job", job.Name), attribute.String("task", string(job.Task)))
	defer func() { end(err) }()

	start := time.Now()
	logger.G(ctx).Info("job started")
	if err = handler(ctx, job); err != nil {
		logger.G(ctx).WithError(err).WithField("duration", time.Since(start)).Error("job failed")
		return err
	}
	logger.G(ctx).WithField("duration", time.Since(start)).Info("job finished")
	return nil
}

// cronLogger adapts logrus to cron.Logger
type cronLogger struct {
	entry *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.entry.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.entry.WithError(err).WithFields(fields(keysAndValues)).Error(msg)
}

func fields(kv []any) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
