package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/target/cyano-batch/internal/domain/model"
)

func runQueueStats(cmdCtx *commandContext, _ []string) error {
	ctx, cancel := commandTimeoutContext(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	return withInfra(cmdCtx, false, true, func(conns *infra) error {
		stats, err := conns.Broker.Stats(ctx)
		if err != nil {
			return err
		}
		return renderQueueStats(os.Stdout, cmdCtx.Config.Worker.QueuePrefix, stats)
	})
}

func renderQueueStats(w io.Writer, prefix string, stats *model.QueueStats) error {
	if stats == nil {
		return errors.New("queue stats are required")
	}
	return writef(w, "Queue %q\n  queued:       %d\n  revoked:      %d\n  dead letters: %d\n",
		prefix, stats.Queued, stats.Revoked, stats.DeadLetters)
}

func runDeadLetters(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("dead-letters", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	limit := fs.Int64("limit", 20, "Maximum number of dead letters to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("--limit must be greater than zero")
	}

	ctx, cancel := commandTimeoutContext(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	return withInfra(cmdCtx, false, true, func(conns *infra) error {
		letters, err := conns.Broker.DeadLetters(ctx, *limit)
		if err != nil {
			return err
		}
		return renderDeadLetters(os.Stdout, letters)
	})
}

const maxPayloadPreview = 80

func renderDeadLetters(w io.Writer, letters []model.DeadLetter) error {
	if len(letters) == 0 {
		return writeln(w, "(no dead letters)")
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "FAILED AT\tREASON\tPAYLOAD"); err != nil {
		return fmt.Errorf("write dead letter header: %w", err)
	}
	for _, dl := range letters {
		failedAt := dl.FailedAt
		if err := writef(tw, "%s\t%s\t%s\n", formatTime(&failedAt), dl.Reason, truncate(dl.Payload, maxPayloadPreview)); err != nil {
			return fmt.Errorf("write dead letter row: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush dead letter table: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
