// Package commands implements the twin command line.
package commands

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashureev/twinsync/internal/client"
	"github.com/ashureev/twinsync/internal/config"
	"github.com/ashureev/twinsync/internal/console"
	"github.com/ashureev/twinsync/internal/sched"
	"github.com/ashureev/twinsync/internal/session"
	"github.com/ashureev/twinsync/internal/store"
	"github.com/ashureev/twinsync/internal/transport"
)

// New returns the root command.
func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "twin",
		Short:         "Twin Messenger in the terminal.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if err := godotenv.Load(); err != nil {
				slog.Debug("No .env file found, using environment variables")
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	AddCommands(cmd)
	return cmd
}

// AddCommands registers every subcommand on topLevel.
func AddCommands(topLevel *cobra.Command) {
	addServe(topLevel)
	addRegister(topLevel)
	addLogin(topLevel)
	addLogout(topLevel)
	addContacts(topLevel)
	addAddContact(topLevel)
	addChat(topLevel)
	addSound(topLevel)
}

// runtime is what every client command needs.
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	repo      store.Repository
	sess      *session.Context
	transport *transport.Client
	presenter *console.Presenter
	alerter   *console.Alerter
}

func load(cmd *cobra.Command) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	repo, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	sess := session.New(repo)

	tc, err := transport.New(cfg.APIURL, sess,
		transport.WithTimeout(cfg.HTTPTimeout),
		transport.WithSessionParam(cfg.SessionParam),
		transport.WithLogger(logger),
	)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	return &runtime{
		cfg:       cfg,
		logger:    logger,
		repo:      repo,
		sess:      sess,
		transport: tc,
		presenter: console.NewPresenter(nil),
		alerter:   console.NewAlerter(nil, logger),
	}, nil
}

// app builds a client driven by s. An expired session tears it down.
func (r *runtime) app(s sched.Scheduler) *client.App {
	app := client.New(client.Config{
		Scheduler:           s,
		Remote:              transport.NewAPI(r.transport),
		Session:             r.sess,
		Presenter:           r.presenter,
		Alerter:             r.alerter,
		PollInterval:        r.cfg.PollInterval,
		ContactPollInterval: r.cfg.ContactPollInterval,
		BuzzCooldown:        r.cfg.BuzzCooldown,
		NearBottom:          r.cfg.NearBottom,
		Logger:              r.logger,
	})
	r.transport.OnUnauthorized(app.Unauthorized)
	return app
}

func (r *runtime) Close() {
	r.alerter.Wait()
	if err := r.repo.Close(); err != nil {
		r.logger.Warn("failed to close session store", "error", err)
	}
}

// oneShot returns an app for commands that make a single request. Nothing
// it posts is ever run.
func (r *runtime) oneShot() *client.App {
	return r.app(sched.NewDispatcher(r.logger))
}

func prompt(in io.Reader, out io.Writer, label string) (string, error) {
	_, _ = fmt.Fprint(out, label)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.TrimSpace(label), ":"), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
