package commands

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/twinsync/internal/domain"
	"github.com/ashureev/twinsync/internal/sched"
)

func addContacts(topLevel *cobra.Command) {
	var watch bool

	cmd := &cobra.Command{
		Use:     "contacts",
		Aliases: []string{"ls"},
		Short:   "List contacts with presence and unread counts.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := load(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if !watch {
				_, err := rt.oneShot().ListContacts(cmd.Context())
				return err
			}
			return watchContacts(cmd.Context(), rt)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep polling and notify on new messages")
	topLevel.AddCommand(cmd)
}

// watchContacts polls the contact list until interrupted or the session
// expires.
func watchContacts(ctx context.Context, rt *runtime) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := sched.NewDispatcher(rt.logger)
	app := rt.app(d)
	rt.transport.OnUnauthorized(func() {
		app.Unauthorized()
		stop()
	})
	app.SetForeground(false)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(d.Run(gctx)) })
	if err := app.StartContacts(gctx); err != nil {
		stop()
		_ = g.Wait()
		return err
	}
	return g.Wait()
}

func addAddContact(topLevel *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "add-contact <email>",
		Short: "Add a contact by email.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			app := rt.oneShot()
			if _, err := app.Guard(cmd.Context()); err != nil {
				return err
			}
			return app.AddContact(cmd.Context(), args[0])
		},
	}
	topLevel.AddCommand(cmd)
}

// findContact matches arg against contact ids, then names ignoring case.
func findContact(contacts []domain.Contact, arg string) (domain.Contact, bool) {
	arg = strings.TrimSpace(arg)
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		for _, c := range contacts {
			if c.ID == id {
				return c, true
			}
		}
	}
	for _, c := range contacts {
		if strings.EqualFold(c.Name, arg) {
			return c, true
		}
	}
	return domain.Contact{}, false
}
