package info

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/cargoworks/cargo/internal/cmdutil"
)

// BinCmd returns the Cobra bin command
func BinCmd(ch *cmdutil.Helper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bin",
		Short: "Get the path to the Turbo binary",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ch.GetCmdBase(cmd.Flags())
			if err != nil {
				return err
			}

			path, err := os.Executable()
			if err != nil {
				base.LogError("could not get path to turbo binary: %v", err)
				return err
			}

			base.UI.Output(path)
			return nil
		},
	}

	return cmd
}
