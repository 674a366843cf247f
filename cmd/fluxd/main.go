package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"flux/internal/app"
	"flux/internal/storage"
)

func main() {
	var (
		cfgPath string
		history string
		limit   int
	)
	flag.StringVar(&cfgPath, "config", "./fluxd.yaml", "path to config yaml/json")
	flag.StringVar(&history, "history", "", "print recent runs of a job (\"*\" for all) and exit")
	flag.IntVar(&limit, "limit", 20, "number of history entries to print")
	flag.Parse()

	if history != "" {
		if err := printHistory(cfgPath, history, limit); err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}

	dump := make(chan os.Signal, 1)
	signal.Notify(dump, syscall.SIGUSR1)
	defer signal.Stop(dump)

	reason := app.StopSignal
wait:
	for {
		select {
		case <-dump:
			dumpCtx, dumpCancel := context.WithTimeout(ctx, time.Second)
			if err := a.LogState(dumpCtx); err != nil {
				fmt.Fprintln(os.Stderr, "state dump:", err)
			}
			dumpCancel()
		case <-ctx.Done():
			break wait
		case <-a.Done():
			if a.Err() != nil {
				reason = app.StopFatalError
			}
			break wait
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if err := a.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func printHistory(cfgPath, job string, limit int) error {
	if job == "*" {
		job = ""
	}
	runs, err := app.QueryHistory(context.Background(), cfgPath, job, limit)
	if errors.Is(err, storage.ErrDisabled) {
		return errors.New("run history is disabled (storage.driver is none)")
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AT\tJOB\tDUE\tCUTOFF\tTOOK\tNEXT")
	for _, r := range runs {
		next := "-"
		if r.Requeued {
			next = fmt.Sprint(r.NextMS)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%dms\t%s\n",
			r.At.Local().Format(time.DateTime), r.Job, r.DueMS, r.CutoffMS, r.TookMS, next)
	}
	return w.Flush()
}
