// ABOUTME: Subcommand implementations for the cloudworker CLI
// ABOUTME: Each command parses its own flags, builds the app, and prints worker output

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/coven-cloudworker/internal/config"
	"github.com/2389/coven-cloudworker/internal/provider"
	"github.com/2389/coven-cloudworker/internal/pubsub"
	"github.com/2389/coven-cloudworker/internal/reconcile"
	"github.com/2389/coven-cloudworker/internal/worker"
)

// errHelp signals that usage was printed and the command should exit cleanly.
var errHelp = errors.New("help requested")

type commandFlags struct {
	set        *pflag.FlagSet
	configPath string
}

func newFlags(name string, stderr io.Writer) *commandFlags {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	c := &commandFlags{set: fs}
	fs.StringVar(&c.configPath, "config", "", "path to config file")
	return c
}

func (c *commandFlags) parse(args []string) error {
	if err := c.set.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return errHelp
		}
		return err
	}
	return nil
}

// positional returns exactly n positional arguments or an error naming them.
func (c *commandFlags) positional(n int, names ...string) ([]string, error) {
	args := c.set.Args()
	if len(args) < n {
		return nil, fmt.Errorf("usage: cloudworker %s %s", c.set.Name(), strings.Join(names, " "))
	}
	return args, nil
}

func (c *commandFlags) loadConfig() (*config.Config, string, error) {
	path := c.configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

// openApp loads config and builds the app. Logs go to logOut, notifications to notifyOut.
func (c *commandFlags) openApp(logOut, notifyOut io.Writer) (*app, error) {
	cfg, _, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(cfg, setupLogger(cfg.Logging, logOut), notifyOut)
}

func runServe(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flags := newFlags("serve", stderr)
	if err := flags.parse(args); err != nil {
		return ignoreHelp(err)
	}

	cfg, configPath, err := flags.loadConfig()
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	cyan.Fprint(stdout, banner)
	gray.Fprintf(stdout, "    version: %s\n\n", version)
	green.Fprint(stdout, "    ▶ ")
	fmt.Fprintf(stdout, "Config:    %s\n", configPath)
	green.Fprint(stdout, "    ▶ ")
	fmt.Fprintf(stdout, "Provider:  %s\n", cfg.Provider)
	green.Fprint(stdout, "    ▶ ")
	fmt.Fprintf(stdout, "Store:     %s %s\n", cfg.Store.Driver, cfg.Store.Path)
	green.Fprint(stdout, "    ▶ ")
	fmt.Fprintf(stdout, "Interval:  %s\n\n", cfg.Poll.Interval)

	logger := setupLogger(cfg.Logging, stdout)
	a, err := newApp(cfg, logger, stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("starting coven-cloudworker",
		"config", configPath,
		"provider", cfg.Provider,
		"store", cfg.Store.Driver,
		"capabilities", provider.Capabilities(a.provider).String(),
	)

	watchCtx, stopWatching := context.WithCancel(ctx)
	defer stopWatching()
	go watchTransitions(watchCtx, a, a.events.Subscribe(watchCtx))

	loop := reconcile.NewLoop(a.rec, a.store, reconcile.Options{
		Interval:         cfg.Poll.Interval,
		FailureLogWindow: cfg.Poll.FailureLogWindow,
		Logger:           logger,
	})
	loop.Start(ctx)

	<-ctx.Done()
	logger.Info("shutting down")
	loop.Stop()
	loop.Wait()
	return nil
}

// watchTransitions reacts to completed sessions by fetching their artifacts
// when automatic review is on.
func watchTransitions(ctx context.Context, a *app, events <-chan pubsub.Event[reconcile.Transition]) {
	for ev := range events {
		if ev.Type != reconcile.EventCompleted {
			continue
		}
		s := ev.Payload.Session
		if !s.AutoReview {
			continue
		}
		artifacts, err := a.service.Artifacts(ctx, s.ID)
		if err != nil {
			a.logger.Warn("fetching artifacts for review failed", "session_id", s.ID, "error", err)
			continue
		}
		attrs := []any{"session_id", s.ID, "pr_url", artifacts.PRURL}
		if artifacts.Patch != nil {
			attrs = append(attrs,
				"files", len(artifacts.Patch.FilesChanged),
				"additions", artifacts.Patch.Additions,
				"deletions", artifacts.Patch.Deletions,
			)
		}
		a.logger.Info("artifacts ready for review", attrs...)
	}
}

func runStart(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flags := newFlags("start", stderr)
	var req worker.StartRequest
	var noAutoReview bool
	flags.set.StringVarP(&req.Prompt, "prompt", "p", "", "task description (required)")
	flags.set.StringVarP(&req.Title, "title", "t", "", "short title for the session and PR")
	flags.set.StringVarP(&req.Branch, "branch", "b", "", "starting branch (default: current branch)")
	flags.set.StringVarP(&req.Repo, "repo", "r", "", "owner/repo or remote URL (default: origin)")
	flags.set.BoolVar(&noAutoReview, "no-auto-review", false, "disable the automatic review loop")
	flags.set.BoolVar(&req.RequirePlan, "require-plan", false, "wait for manual plan approval")
	if err := flags.parse(args); err != nil {
		return ignoreHelp(err)
	}
	if req.Prompt == "" && flags.set.NArg() > 0 {
		req.Prompt = strings.Join(flags.set.Args(), " ")
	}
	if noAutoReview {
		off := false
		req.AutoReview = &off
	}

	a, err := flags.openApp(stderr, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.service.Start(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, worker.FormatStart(res.Session))
	return nil
}

func runList(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flags := newFlags("list", stderr)
	if err := flags.parse(args); err != nil {
		return ignoreHelp(err)
	}
	a, err := flags.openApp(stderr, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	sessions, err := a.service.List(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, worker.FormatList(sessions))
	return nil
}

func runStatus(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	return withSession("status", args, stderr, func(a *app, id string) error {
		res, err := a.service.Status(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, worker.FormatStatus(res))
		return nil
	})
}

func runCancel(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	return withSession("cancel", args, stderr, func(a *app, id string) error {
		s, err := a.service.Cancel(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Session %s is now %s.\n", s.ID, s.Status)
		return nil
	})
}

func runApprove(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	return withSession("approve", args, stderr, func(a *app, id string) error {
		if err := a.service.ApprovePlan(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Plan approved for session %s.\n", id)
		return nil
	})
}

func runArtifacts(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	return withSession("artifacts", args, stderr, func(a *app, id string) error {
		artifacts, err := a.service.Artifacts(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, worker.FormatArtifacts(artifacts))
		return nil
	})
}

func runFeedback(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flags := newFlags("feedback", stderr)
	var message string
	flags.set.StringVarP(&message, "message", "m", "", "message to send")
	if err := flags.parse(args); err != nil {
		return ignoreHelp(err)
	}
	pos, err := flags.positional(1, "ID", "MESSAGE")
	if err != nil {
		return err
	}
	if message == "" {
		message = strings.Join(pos[1:], " ")
	}

	a, err := flags.openApp(stderr, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.service.SendFeedback(ctx, pos[0], message); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Feedback sent to session %s.\n", pos[0])
	return nil
}

func runSources(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flags := newFlags("sources", stderr)
	if err := flags.parse(args); err != nil {
		return ignoreHelp(err)
	}
	a, err := flags.openApp(stderr, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	sources, err := a.service.Sources(ctx)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		fmt.Fprintln(stdout, "No sources available.")
		return nil
	}
	for _, s := range sources {
		fmt.Fprintln(stdout, s)
	}
	return nil
}

// withSession handles the common "command ID" shape.
func withSession(name string, args []string, stderr io.Writer, fn func(a *app, id string) error) error {
	flags := newFlags(name, stderr)
	if err := flags.parse(args); err != nil {
		return ignoreHelp(err)
	}
	pos, err := flags.positional(1, "ID")
	if err != nil {
		return err
	}

	a, err := flags.openApp(stderr, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a, pos[0])
}

func ignoreHelp(err error) error {
	if errors.Is(err, errHelp) {
		return nil
	}
	return err
}
