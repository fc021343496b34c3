package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/target/cyano-batch/internal/bootstrap"
	"github.com/target/cyano-batch/internal/data"
	"github.com/target/cyano-batch/internal/domain/model"
)

type listJobsOptions struct {
	Username string
	Limit    int
	JSON     bool
}

func parseListJobsFlags(args []string) (listJobsOptions, error) {
	fs := flag.NewFlagSet("list-jobs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := listJobsOptions{}
	fs.StringVar(&opts.Username, "user", "", "Username whose jobs to list (required)")
	fs.IntVar(&opts.Limit, "limit", 20, "Maximum number of jobs to print (0 for all)")
	fs.BoolVar(&opts.JSON, "json", false, "Print jobs as JSON in the API's field format")

	if err := fs.Parse(args); err != nil {
		return listJobsOptions{}, err
	}
	opts.Username = strings.TrimSpace(opts.Username)
	if opts.Username == "" {
		return listJobsOptions{}, errors.New("--user is required")
	}
	if opts.Limit < 0 {
		return listJobsOptions{}, errors.New("--limit must not be negative")
	}
	return opts, nil
}

func runListJobs(cmdCtx *commandContext, args []string) error {
	opts, err := parseListJobsFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := commandTimeoutContext(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	return withInfra(cmdCtx, true, false, func(conns *infra) error {
		user, err := data.NewUserRepo(conns.DB).GetByUsername(ctx, opts.Username)
		if err != nil {
			return fmt.Errorf("look up user %q: %w", opts.Username, err)
		}
		jobs, err := data.NewBatchJobRepo(conns.DB, data.RepoConfig{Logger: cmdCtx.Logger}).ListByUser(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("list jobs: %w", err)
		}
		if opts.Limit > 0 && len(jobs) > opts.Limit {
			jobs = jobs[:opts.Limit]
		}
		if opts.JSON {
			return printJobsJSON(os.Stdout, jobs)
		}
		return renderJobsTable(os.Stdout, jobs)
	})
}

func printJobsJSON(w io.Writer, jobs []*model.BatchJob) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(jobs); err != nil {
		return fmt.Errorf("encode jobs: %w", err)
	}
	return nil
}

func renderJobsTable(w io.Writer, jobs []*model.BatchJob) error {
	if len(jobs) == 0 {
		return writeln(w, "(no jobs found)")
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "JOB ID\tNUM\tSTATUS\tLOCATIONS\tINPUT\tRECEIVED\tFINISHED"); err != nil {
		return fmt.Errorf("write jobs header: %w", err)
	}
	for _, j := range jobs {
		if err := writef(tw, "%s\t%d\t%s\t%d\t%s\t%s\t%s\n",
			j.ID,
			j.JobNum,
			j.Status,
			j.NumLocations,
			j.InputFile,
			formatTime(&j.ReceivedAt),
			formatTime(j.FinishedAt),
		); err != nil {
			return fmt.Errorf("write job row: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush jobs table: %w", err)
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

type requeueOptions struct {
	JobID string
	Yes   bool
}

func parseRequeueFlags(args []string) (requeueOptions, error) {
	fs := flag.NewFlagSet("requeue", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := requeueOptions{}
	fs.StringVar(&opts.JobID, "job", "", "Job id to requeue (required)")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip the confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return requeueOptions{}, err
	}
	opts.JobID = strings.TrimSpace(opts.JobID)
	if opts.JobID == "" {
		return requeueOptions{}, errors.New("--job is required")
	}
	return opts, nil
}

func runRequeue(cmdCtx *commandContext, args []string) error {
	opts, err := parseRequeueFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := commandTimeoutContext(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	return withInfra(cmdCtx, true, true, func(conns *infra) error {
		job, err := data.NewBatchJobRepo(conns.DB, data.RepoConfig{Logger: cmdCtx.Logger}).GetByID(ctx, opts.JobID)
		if err != nil {
			return fmt.Errorf("load job %s: %w", opts.JobID, err)
		}
		if err := checkRequeueable(job); err != nil {
			return err
		}
		if err := confirm(opts.Yes, fmt.Sprintf("requeue job %s (%s, %d locations)", job.ID, job.Status, job.NumLocations)); err != nil {
			return err
		}

		msg, err := conns.Broker.Requeue(ctx, job.ID)
		if err != nil {
			return err
		}
		cmdCtx.Logger.Info("job requeued", "job_id", msg.JobID, "attempt", msg.Attempt)
		return writef(os.Stdout, "Requeued %s (attempt %d)\n", msg.JobID, msg.Attempt)
	})
}

// checkRequeueable rejects jobs whose record is already final; the worker would skip them anyway.
func checkRequeueable(job *model.BatchJob) error {
	if job.Status.IsTerminal() {
		return fmt.Errorf("job %s is %s: %w", job.ID, job.Status, model.ErrTaskNotRequeueable)
	}
	return nil
}

func runReconcile(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	timeout := fs.Duration("timeout", defaultCommandTimeout, "Maximum duration of the sweep")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := commandTimeoutContext(cmdCtx.Ctx, *timeout)
	defer cancel()

	return withInfra(cmdCtx, true, true, func(conns *infra) error {
		runner, err := bootstrap.NewReaperRunner(bootstrap.ReaperConfig{
			DB:     conns.DB,
			Broker: conns.Broker,
			Logger: cmdCtx.Logger,
			Config: cmdCtx.Config.Reaper,
		})
		if err != nil {
			return err
		}
		n, err := runner.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("reconcile: %w", err)
		}
		return writef(os.Stdout, "Reconciled %d job(s)\n", n)
	})
}

type ensureUserOptions struct {
	Username string
	Email    string
}

func parseEnsureUserFlags(args []string) (ensureUserOptions, error) {
	fs := flag.NewFlagSet("ensure-user", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := ensureUserOptions{}
	fs.StringVar(&opts.Username, "user", "", "Username (required)")
	fs.StringVar(&opts.Email, "email", "", "Notification address (required)")

	if err := fs.Parse(args); err != nil {
		return ensureUserOptions{}, err
	}
	opts.Username = strings.TrimSpace(opts.Username)
	opts.Email = strings.TrimSpace(opts.Email)
	if opts.Username == "" || opts.Email == "" {
		return ensureUserOptions{}, errors.New("--user and --email are required")
	}
	if !strings.Contains(opts.Email, "@") {
		return ensureUserOptions{}, fmt.Errorf("--email %q is not an address", opts.Email)
	}
	return opts, nil
}

func runEnsureUser(cmdCtx *commandContext, args []string) error {
	opts, err := parseEnsureUserFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := commandTimeoutContext(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	return withInfra(cmdCtx, true, false, func(conns *infra) error {
		user, err := data.NewUserRepo(conns.DB).Ensure(ctx, opts.Username, opts.Email)
		if err != nil {
			return fmt.Errorf("ensure user: %w", err)
		}
		return writef(os.Stdout, "User %s has id %d\n", user.Username, user.ID)
	})
}
