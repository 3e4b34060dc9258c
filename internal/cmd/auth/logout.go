package auth

import (
	"github.com/spf13/cobra"
	"github.com/cargoworks/cargo/internal/cmdutil"
	"github.com/cargoworks/cargo/internal/util"
)

// LogoutCmd returns the Cobra logout command
func LogoutCmd(ch *cmdutil.Helper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Logout of your Vercel account",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ch.GetCmdBase(cmd.Flags())
			if err != nil {
				return err
			}
			if err := base.UserConfig.Delete(); err != nil {
				base.LogError("could not logout. Something went wrong: %w", err)
				return err
			}

			base.UI.Info(util.Sprintf("${GREY}>>> Logged out${RESET}"))

			return nil
		},
	}

	return cmd
}
