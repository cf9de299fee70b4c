package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"

	"herald/internal/broadcast"
	"herald/internal/config"
	"herald/internal/roster"
	"herald/internal/sender/botapi"
	"herald/internal/sender/userbot"
	"herald/pkg/logx"
)

func main() {
	var (
		cfgPath string
		text    string
		name    string
		policy  string
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (yaml or json)")
	flag.StringVar(&text, "text", "", "text to broadcast to the roster")
	flag.StringVar(&name, "name", "cli", "run name (for status/logs)")
	flag.StringVar(&policy, "policy", "primary", "channel policy: primary | secondary")
	flag.Parse()

	if strings.TrimSpace(text) == "" {
		fmt.Fprintln(os.Stderr, "fatal: -text is required")
		os.Exit(2)
	}

	// Secrets may live in an .env next to the binary instead of the config.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath, text, name, policy); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath, text, name, policy string) error {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(cfg.LogConfig())
	defer logSvc.Close()
	mgr.SetLogger(log)
	log.Info("starting", logx.String("config", cfgPath), logx.String("summary", cfg.Redacted()))

	// Hot-reload only touches logging; pacing knobs are snapshotted per run.
	go func() { _ = mgr.Watch(ctx) }()
	sub := mgr.Subscribe(1)
	defer mgr.Unsubscribe(sub)
	go func() {
		for next := range sub {
			logSvc.Apply(next.LogConfig())
		}
	}()

	token := cfg.Primary.Token
	if env := os.Getenv("HERALD_BOT_TOKEN"); env != "" {
		token = env
	}
	primary, err := botapi.New(botapi.Config{Token: token}, log.With(logx.String("component", "botapi")))
	if err != nil {
		return err
	}

	var secondary broadcast.Sender
	if sec := cfg.Secondary; sec != nil && sec.Enabled {
		ub, err := userbot.New(userbot.Config{
			APIID:      sec.APIID,
			APIHash:    sec.APIHash,
			Phone:      sec.Phone,
			SessionDir: sec.SessionDir,
			RatePerSec: sec.RatePerSec,
		}, log)
		if err != nil {
			return err
		}
		defer func() { _ = ub.Close(context.Background()) }()
		secondary = ub
	}

	busyTimeout, _ := config.ParseDurationField("roster.busy_timeout", cfg.Roster.BusyTimeout)
	store, err := roster.Open(roster.Config{Path: cfg.Roster.Path, BusyTimeout: busyTimeout}, log)
	if err != nil {
		return fmt.Errorf("open roster: %w", err)
	}
	defer store.Close()

	recipients, err := store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("roster snapshot: %w", err)
	}

	sink := func(s broadcast.Snapshot) {
		log.Info("progress",
			logx.String("run", s.RunID),
			logx.Int("percent", s.Percent()),
			logx.Int("processed", s.Processed),
			logx.Int("total", s.Total),
			logx.Int("succeeded", s.Succeeded),
			logx.Int("failed", s.Failed),
			logx.Bool("final", s.Final))
	}
	svc := broadcast.NewService(cfg.ServiceConfig(), primary, secondary, primary, sink, log)
	svc.Start(ctx)
	defer svc.Stop(context.Background())

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	job := broadcast.Job{
		Name:       name,
		Recipients: recipients,
		Message:    broadcast.NewText(text),
		Policy:     parsePolicy(policy),
	}
	rep, err := svc.Run(ctx, job)
	if err != nil {
		return err
	}

	fmt.Printf("total=%d succeeded=%d failed=%d retry_rounds=%d cancelled=%v\n",
		rep.Total, rep.Succeeded, rep.Failed, rep.RetryRounds, rep.Cancelled)
	for ch, n := range rep.ByChannel {
		fmt.Printf("  via %s: %d\n", ch, n)
	}
	return nil
}

func parsePolicy(s string) broadcast.Policy {
	if strings.EqualFold(strings.TrimSpace(s), "secondary") {
		return broadcast.SecondaryPreferred
	}
	return broadcast.PrimaryOnly
}
