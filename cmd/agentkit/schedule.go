package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/agentkit/pkg/artifact"
	"github.com/jingkaihe/agentkit/pkg/docs"
	"github.com/jingkaihe/agentkit/pkg/logger"
	"github.com/jingkaihe/agentkit/pkg/schedule"
)

func newScheduleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run documentation crawls and catalog syncs on a cron schedule",
		Long: `Jobs are read from schedule.jobs in the config file:

  schedule:
    jobs:
      - name: nightly-docs
        spec: "0 3 * * *"
        task: docs-crawl      # args: source names, default all
      - name: catalogs
        spec: "@hourly"
        task: catalog-sync    # args: kinds, default all

Use "schedule run" to keep a scheduler in the foreground or "schedule
crontab" to print entries for the system cron daemon.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(
		newScheduleRunCmd(a),
		newScheduleNextCmd(a),
		newScheduleCrontabCmd(a),
		newScheduleExecCmd(a),
	)
	return cmd
}

// runner wires the scheduled tasks to the app
func (a *app) runner() (*schedule.Runner, error) {
	return schedule.NewRunner(a.cfg.Schedule.Jobs, map[schedule.Task]schedule.Handler{
		schedule.TaskDocsCrawl:   a.docsCrawlTask,
		schedule.TaskCatalogSync: a.catalogSyncTask,
	})
}

func (a *app) docsCrawlTask(ctx context.Context, job schedule.Job) error {
	sources, err := a.selectSources(job.Args)
	if err != nil {
		return err
	}
	return a.crawlDocs(ctx, sources, func(r *docs.CrawlResult) {
		logger.G(ctx).WithField("source", r.Source).
			WithField("updated", r.Updated).
			WithField("failed", r.Failed).
			Info("source crawled")
	})
}

func (a *app) catalogSyncTask(ctx context.Context, job schedule.Job) error {
	kinds := artifact.Kinds
	if len(job.Args) > 0 {
		kinds = nil
		for _, arg := range job.Args {
			kind, err := artifact.ParseKind(arg)
			if err != nil {
				return err
			}
			kinds = append(kinds, kind)
		}
	}

	var result *multierror.Error
	for _, kind := range kinds {
		res, err := a.builder(kind).Sync(ctx)
		if err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "%s catalog", kind))
			continue
		}
		logger.G(ctx).WithField("kind", kind).
			WithField("added", len(res.Added)).
			WithField("updated", len(res.Updated)).
			WithField("removed", len(res.Removed)).
			Info("catalog synced")
	}
	return result.ErrorOrNil()
}

func newScheduleRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler in the foreground until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := a.runner()
			if err != nil {
				return err
			}
			a.out.Info("Running %d job(s), press ctrl+c to stop", len(r.Jobs()))
			return r.Run(cmd.Context())
		},
	}
}

func newScheduleExecCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <job>",
		Short: "Run a scheduled job once, now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.runner()
			if err != nil {
				return err
			}
			job, err := r.Find(args[0])
			if err != nil {
				return err
			}
			if err := r.Exec(cmd.Context(), job); err != nil {
				return errors.Wrapf(err, "job %s failed", job.Name)
			}
			a.out.Success("Job %s finished", job.Name)
			return nil
		},
	}
}

func newScheduleNextCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next [job...]",
		Short: "Show the upcoming runs of scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, _ := cmd.Flags().GetInt("count")
			if n < 1 {
				return errors.New("--count must be at least 1")
			}

			jobs := a.cfg.Schedule.Jobs
			if spec, _ := cmd.Flags().GetString("spec"); spec != "" {
				jobs = []schedule.Job{{Name: "spec", Spec: spec}}
			} else if len(args) > 0 {
				jobs = nil
				for _, name := range args {
					job, err := findJob(a.cfg.Schedule.Jobs, name)
					if err != nil {
						return err
					}
					jobs = append(jobs, job)
				}
			}
			if len(jobs) == 0 {
				return errors.New("no jobs configured, add them under schedule.jobs or pass --spec")
			}

			now := time.Now()
			for _, job := range jobs {
				times, err := schedule.Next(job.Spec, now, n)
				if err != nil {
					return err
				}
				a.out.Section(job.Name + " (" + job.Spec + ")")
				for _, t := range times {
					a.out.Info("  %s", t.Format(time.RFC1123))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntP("count", "n", 5, "Number of runs to show")
	cmd.Flags().String("spec", "", "Preview a cron expression instead of configured jobs")
	return cmd
}

func findJob(jobs []schedule.Job, name string) (schedule.Job, error) {
	for _, job := range jobs {
		if job.Name == name {
			return job, nil
		}
	}
	return schedule.Job{}, errors.Errorf("unknown job %q", name)
}

func newScheduleCrontabCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crontab",
		Short: "Print system crontab entries for the scheduled jobs",
		Long: `Print one crontab line per job, each running "agentkit schedule exec <job>".
Install them with:

  agentkit schedule crontab | crontab -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(a.cfg.Schedule.Jobs) == 0 {
				return errors.New("no jobs configured, add them under schedule.jobs")
			}
			binary, _ := cmd.Flags().GetString("binary")
			if binary == "" {
				exe, err := os.Executable()
				if err != nil {
					return errors.Wrap(err, "failed to locate the agentkit binary")
				}
				binary = exe
			}

			var lines []string
			for _, job := range a.cfg.Schedule.Jobs {
				line, err := schedule.CrontabLine(job, binary)
				if err != nil {
					return err
				}
				lines = append(lines, line)
			}
			for _, line := range lines {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	cmd.Flags().String("binary", "", "Path of the agentkit binary (default: the running executable)")
	return cmd
}
