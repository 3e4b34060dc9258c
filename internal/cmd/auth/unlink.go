package auth

import (
	"github.com/spf13/cobra"
	"github.com/cargoworks/cargo/internal/cmdutil"
	"github.com/cargoworks/cargo/internal/util"
)

// UnlinkCmd returns the Cobra unlink command
func UnlinkCmd(ch *cmdutil.Helper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unlink",
		Short: "Unlink the current directory from your Vercel organization and disable Remote Caching",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ch.GetCmdBase(cmd.Flags())
			if err != nil {
				return err
			}
			if err := base.RepoConfig.Delete(); err != nil {
				base.LogError("could not unlink. Something went wrong: %w", err)
				return err
			}

			base.UI.Output(util.Sprintf("${GREY}> Disabled Remote Caching${RESET}"))

			return nil
		},
	}

	return cmd
}
