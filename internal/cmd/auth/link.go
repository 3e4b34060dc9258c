package auth

import (
	"os/exec"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/cargoworks/cargo/internal/client"
	"github.com/cargoworks/cargo/internal/cmdutil"
	"github.com/cargoworks/cargo/internal/ui"
)

// LinkCmd returns the Cobra link command
func LinkCmd(ch *cmdutil.Helper) *cobra.Command {
	var opts struct {
		noGitignore bool
	}

	cmd := &cobra.Command{
		Use:   "link",
		Short: "Link your local directory to a Vercel organization and enable remote caching",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ch.GetCmdBase(cmd.Flags())
			if err != nil {
				return err
			}

			shouldSetup := true
			dir, homeDirErr := homedir.Dir()
			if homeDirErr != nil {
				base.LogError("could not find home directory.\n%v", homeDirErr)
				return homeDirErr
			}

			base.UI.Output(">>> Remote Caching (beta)")
			base.UI.Output("")
			base.UI.Output("  Remote Caching shares your cached Turborepo task outputs and logs")
			base.UI.Output("  across all your team's Vercel projects. It also can share outputs")
			base.UI.Output("  with other services that enable Remote Caching, like CI/CD systems.")
			base.UI.Output("  This results in faster build times and deployments for your team.")
			base.UI.Output("  For more info, see https://turborepo.org/docs/features/remote-caching")
			base.UI.Output("")

			currentDir := base.RepoRoot.ToString()

			if err := survey.AskOne(
				&survey.Confirm{
					Default: true,
					Message: "Would you like to enable Remote Caching for \"" + strings.Replace(currentDir, dir, "~", 1) + "\"?",
				},
				&shouldSetup, survey.WithValidator(survey.Required),
			); err != nil {
				return err
			}

			if !shouldSetup {
				base.UI.Output("> Aborted.")
				return nil
			}

			if base.RemoteConfig.Token == "" {
				base.LogError("user not found. Please login to Turborepo first by running `npx turbo login`.")
				return nil
			}

			teamsResponse, err := base.APIClient.GetTeams()
			if err != nil {
				base.LogError("could not get team information.\n%v", err)
				return err
			}
			userResponse, err := base.APIClient.GetUser()
			if err != nil {
				base.LogError("could not get user information.\n%v", err)
				return err
			}

			var chosenTeam client.Team

			teamOptions := make([]string, len(teamsResponse.Teams))
			for i, team := range teamsResponse.Teams {
				teamOptions[i] = team.Name
			}

			nameWithFallback := userResponse.User.Name
			if nameWithFallback == "" {
				nameWithFallback = userResponse.User.Username
			}

			var chosenTeamName string
			if err := survey.AskOne(
				&survey.Select{
					Message: "Which Vercel scope (and Remote Cache) do you want to associate with this Turborepo?",
					Options: append([]string{nameWithFallback}, teamOptions...),
				},
				&chosenTeamName,
				survey.WithValidator(survey.Required),
			); err != nil {
				return err
			}

			if chosenTeamName == "" {
				base.UI.Output("Aborted. Turborepo not set up.")
				return nil
			} else if chosenTeamName == userResponse.User.Name || chosenTeamName == userResponse.User.Username {
				chosenTeam = client.Team{
					ID:   userResponse.User.ID,
					Name: userResponse.User.Name,
					Slug: userResponse.User.Username,
				}
			} else {
				for _, team := range teamsResponse.Teams {
					if team.Name == chosenTeamName {
						chosenTeam = team
						break
					}
				}
			}

			if err := base.RepoConfig.SetTeamID(chosenTeam.ID); err != nil {
				base.LogError("could not link current directory to team/user.\n%v", err)
				return err
			}

			if !opts.noGitignore {
				gitignorePath := base.RepoRoot.UntypedJoin(".gitignore")
				if _, err := exec.Command("sh", "-c", "grep -qxF '.turbo' "+gitignorePath.ToString()+" || echo '.turbo' >> "+gitignorePath.ToString()).CombinedOutput(); err != nil {
					base.LogError("could not find or update .gitignore.\n%v", err)
					return err
				}
			}

			base.UI.Output("")
			base.UI.Output(ui.Rainbow(">>> Success!") + " Turborepo CLI authorized for " + chosenTeam.Name)
			base.UI.Output("")
			base.UI.Output("To disable Remote Caching, run `npx turbo unlink`")
			base.UI.Output("")

			return nil
		},
	}

	cmd.Flags().BoolVarP(&opts.noGitignore, "no-gitignore", "n", false, "Do not create or modify .gitignore")

	return cmd
}
