package commands

import (
	"github.com/spf13/cobra"
)

func addRegister(topLevel *cobra.Command) {
	var password string

	cmd := &cobra.Command{
		Use:   "register <name> <email>",
		Short: "Create an account.",
		Example: `
twin register "Ann Lee" ann@example.com
`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if password == "" {
				if password, err = prompt(cmd.InOrStdin(), cmd.OutOrStdout(), "Password: "); err != nil {
					return err
				}
			}
			return rt.oneShot().Register(cmd.Context(), args[0], args[1], password)
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (prompted when empty)")
	topLevel.AddCommand(cmd)
}

func addLogin(topLevel *cobra.Command) {
	var password string

	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Log in and remember the session.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if password == "" {
				if password, err = prompt(cmd.InOrStdin(), cmd.OutOrStdout(), "Password: "); err != nil {
					return err
				}
			}
			app := rt.oneShot()
			if err := app.Login(cmd.Context(), args[0], password); err != nil {
				return err
			}
			_, err = app.ListContacts(cmd.Context())
			return err
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (prompted when empty)")
	topLevel.AddCommand(cmd)
}

func addLogout(topLevel *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget all local state.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := load(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			return rt.oneShot().Logout(cmd.Context())
		},
	}
	topLevel.AddCommand(cmd)
}

func addSound(topLevel *cobra.Command) {
	cmd := &cobra.Command{
		Use:       "sound [on|off]",
		Short:     "Show or change the notification sound preference.",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := cmd.Context()
			app := rt.oneShot()
			if _, err := app.Guard(ctx); err != nil {
				return err
			}
			enabled := rt.sess.SoundEnabled(ctx)
			if len(args) == 1 && (args[0] == "on") != enabled {
				if enabled, err = app.ToggleSound(ctx); err != nil {
					return err
				}
			}
			rt.presenter.ShowInfo("Sound " + onOff(enabled))
			return nil
		},
	}
	topLevel.AddCommand(cmd)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
