package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/choreweek/internal/backup"
	"github.com/dukerupert/choreweek/internal/chore"
	"github.com/dukerupert/choreweek/internal/config"
	"github.com/dukerupert/choreweek/internal/console"
	"github.com/dukerupert/choreweek/internal/database"
	"github.com/dukerupert/choreweek/internal/docstore"
	"github.com/dukerupert/choreweek/internal/email"
	"github.com/dukerupert/choreweek/internal/logging"
	"github.com/dukerupert/choreweek/internal/proof"
	"github.com/dukerupert/choreweek/internal/reminder"
	"github.com/dukerupert/choreweek/internal/server"
	"github.com/dukerupert/choreweek/internal/session"
)

// app holds what every subcommand opens.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sql.DB
	docs   *docstore.SQLite
	chores *chore.Store
}

func setup() (*app, error) {
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		return nil, err
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	docs := docstore.NewSQLite(db)

	opts := []chore.Option{
		chore.WithMaxProofBytes(cfg.Proof.MaxBytes),
		chore.WithLogger(logger.With("component", "chore")),
	}
	if cfg.Proof.S3.Enabled() {
		opts = append(opts, chore.WithBlobStore(proof.NewS3Store(cfg.Proof.S3)))
		logger.Info("proof images stored in S3", "bucket", cfg.Proof.S3.Bucket, "endpoint", cfg.Proof.S3.Endpoint)
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		db:     db,
		docs:   docs,
		chores: chore.NewStore(docs, opts...),
	}, nil
}

func (a *app) dispatcher() (*reminder.Dispatcher, error) {
	if err := a.cfg.RequireMail(); err != nil {
		return nil, err
	}
	schedule := reminder.DefaultSchedule()
	if a.cfg.Reminder.SlotsFile != "" {
		var err error
		if schedule, err = reminder.LoadSchedule(a.cfg.Reminder.SlotsFile); err != nil {
			return nil, err
		}
	}
	mailer := email.NewClient(a.cfg.Mail.PostmarkToken, a.cfg.Mail.FromEmail)
	return reminder.NewDispatcher(a.docs, mailer, schedule,
		reminder.WithLocation(a.cfg.Reminder.Location),
		reminder.WithDefaultRecipient(a.cfg.Mail.DefaultNotify),
		reminder.WithBaseURL(a.cfg.HTTP.BaseURL),
		reminder.WithHouseholdTimeout(a.cfg.Reminder.HouseholdTimeout),
		reminder.WithConcurrency(a.cfg.Reminder.Concurrency),
		reminder.WithLogger(a.logger.With("component", "reminder")),
	), nil
}

func serve(ctx context.Context, _ *cli.Command) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.db.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var ticker *reminder.Ticker
	if a.cfg.Reminder.InProcess {
		d, err := a.dispatcher()
		if err != nil {
			return err
		}
		ticker = reminder.NewTicker(d, a.cfg.BatchHouseholds(), a.logger.With("component", "ticker"))
	}

	srv := server.New(a.docs, a.chores, a.cfg.Reminder.Location, a.logger)
	httpServer := &http.Server{
		Addr:         a.cfg.HTTP.Address(),
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("choreweek listening", "addr", httpServer.Addr, "household", a.cfg.Household.DefaultID)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		srv.RateLimiter().Run(gctx, time.Minute)
		return nil
	})

	if ticker != nil {
		ticker.Start(gctx)
		defer ticker.Stop()
	}

	return g.Wait()
}

func remind(ctx context.Context, _ *cli.Command) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.db.Close()

	d, err := a.dispatcher()
	if err != nil {
		return err
	}
	_, err = d.Run(ctx, a.cfg.Now(), a.cfg.BatchHouseholds())
	return err
}

func (a *app) archiver() (*backup.Archiver, error) {
	if err := a.cfg.RequireBackup(); err != nil {
		return nil, err
	}
	return backup.NewArchiver(a.db, a.cfg.Proof.S3,
		backup.WithPassphrase(a.cfg.Backup.Passphrase),
		backup.WithRetention(a.cfg.Backup.Retention),
		backup.WithPrefix(a.cfg.Backup.Prefix),
		backup.WithLogger(a.logger.With("component", "backup")),
	), nil
}

func runBackup(ctx context.Context, _ *cli.Command) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.db.Close()

	arc, err := a.archiver()
	if err != nil {
		return err
	}
	key, err := arc.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, key)
	return nil
}

func listBackups(ctx context.Context, _ *cli.Command) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.db.Close()

	arc, err := a.archiver()
	if err != nil {
		return err
	}
	archives, err := arc.List(ctx)
	if err != nil {
		return err
	}
	for _, x := range archives {
		fmt.Fprintf(os.Stdout, "%s\t%d\t%s\n", x.Key, x.Size, x.Modified.Format(time.RFC3339))
	}
	return nil
}

func restore(ctx context.Context, cmd *cli.Command) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.db.Close()

	arc, err := a.archiver()
	if err != nil {
		return err
	}
	if cmd.Args().Len() != 2 {
		return errors.New("usage: choreweek restore KEY PATH")
	}
	return arc.Restore(ctx, cmd.Args().Get(0), cmd.Args().Get(1))
}

func client(ctx context.Context, _ *cli.Command) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.db.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := session.Open(ctx, a.docs, a.chores, a.cfg.Household.DefaultID,
		session.WithLocation(a.cfg.Reminder.Location),
		session.WithLogger(a.logger.With("component", "session")),
	)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprintln(os.Stdout, "type help for commands")
	return console.New(s, os.Stdout).Run(ctx, os.Stdin)
}

func main() {
	cmd := &cli.Command{
		Name:  "choreweek",
		Usage: "Weekly household chore rotation with proof photos and email reminders",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and live feed (and hourly reminders when CHOREWEEK_SCHEDULER is set)",
				Action: serve,
			},
			{
				Name:   "remind",
				Usage:  "Send due reminders once; run it at least hourly",
				Action: remind,
			},
			{
				Name:   "backup",
				Usage:  "Upload a copy of the database to the S3 bucket and prune expired copies",
				Action: runBackup,
			},
			{
				Name:   "backups",
				Usage:  "List database copies in the S3 bucket",
				Action: listBackups,
			},
			{
				Name:      "restore",
				Usage:     "Download the database copy KEY into a new file at PATH",
				ArgsUsage: "KEY PATH",
				Action:    restore,
			},
			{
				Name:   "client",
				Usage:  "Interactive console on the default household",
				Action: client,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
