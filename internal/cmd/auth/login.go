package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/cargoworks/cargo/internal/cmdutil"
	"github.com/cargoworks/cargo/internal/ui"
	"github.com/cargoworks/cargo/internal/util/browser"
)

const (
	defaultHostname    = "127.0.0.1"
	defaultPort        = 9789
	defaultSSOProvider = "SAML/OIDC Single Sign-On"
)

type oneShotServer struct {
	Port        uint16
	requestDone chan struct{}
	serverDone  chan struct{}
	serverErr   error
	ctx         context.Context
	srv         *http.Server
}

// LoginCmd returns the Cobra login command
func LoginCmd(ch *cmdutil.Helper) *cobra.Command {
	var opts struct {
		ssoTeam string
	}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login to your Vercel account",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ch.GetCmdBase(cmd.Flags())
			if err != nil {
				return err
			}

			if opts.ssoTeam != "" {
				return runSSOLogin(base, opts.ssoTeam)
			}

			redirectURL := fmt.Sprintf("http://%v:%v", defaultHostname, defaultPort)
			tokenURL := fmt.Sprintf("%v/turborepo/token?redirect_uri=%v", base.RepoConfig.LoginURL(), redirectURL)
			base.UI.Output(fmt.Sprintf(">>> Opening browser to %v", tokenURL))

			rootctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			var query url.Values
			oss, err := newOneShotServer(rootctx, func(w http.ResponseWriter, r *http.Request) {
				query = r.URL.Query()
				http.Redirect(w, r, base.RepoConfig.LoginURL()+"/turborepo/success", http.StatusFound)
			}, defaultPort)
			if err != nil {
				return errors.Wrap(err, "failed to start local server")
			}

			s := ui.NewSpinner(os.Stdout)
			if err := browser.OpenBrowser(tokenURL); err != nil {
				return errors.Wrapf(err, "failed to open %v", tokenURL)
			}
			s.Start("Waiting for your authorization...")
			if err := oss.Wait(); err != nil {
				return errors.Wrap(err, "failed to shut down local server")
			}
			s.Stop("")

			rawToken := query.Get("token")
			if err := base.UserConfig.SetToken(rawToken); err != nil {
				return errors.Wrap(err, "failed to save auth token")
			}
			base.APIClient.SetToken(rawToken)
			userResponse, err := base.APIClient.GetUser()
			if err != nil {
				return errors.Wrap(err, "could not get user information")
			}

			base.UI.Output("")
			base.UI.Output(fmt.Sprintf("%s Turborepo CLI authorized for %s", ui.Rainbow(">>> Success!"), userResponse.User.Email))
			base.UI.Output("")
			base.UI.Output("To connect to your Remote Cache, run the following in the")
			base.UI.Output("root of any turborepo:")
			base.UI.Output("")
			base.UI.Output("  npx turbo link")
			base.UI.Output("")

			return nil
		},
	}

	cmd.Flags().StringVar(&opts.ssoTeam, "sso-team", "", "attempt to authenticate to the specified team using SSO")

	return cmd
}

func runSSOLogin(base *cmdutil.CmdBase, ssoTeam string) error {
	redirectURL := fmt.Sprintf("http://%v:%v", defaultHostname, defaultPort)
	query := make(url.Values)
	query.Add("teamId", ssoTeam)
	query.Add("mode", "login")
	query.Add("next", redirectURL)
	loginURL := fmt.Sprintf("%v/api/auth/sso?%v", base.RepoConfig.LoginURL(), query.Encode())

	rootctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var verificationToken string
	oss, err := newOneShotServer(rootctx, func(w http.ResponseWriter, r *http.Request) {
		token, location := getTokenAndRedirect(r.URL.Query())
		verificationToken = token
		http.Redirect(w, r, location, http.StatusFound)
	}, defaultPort)
	if err != nil {
		return errors.Wrap(err, "failed to start local server")
	}
	s := ui.NewSpinner(os.Stdout)
	if err := browser.OpenBrowser(loginURL); err != nil {
		return errors.Wrapf(err, "failed to open %v", loginURL)
	}
	s.Start("Waiting for your authorization...")
	if err := oss.Wait(); err != nil {
		return errors.Wrap(err, "failed to shut down local server")
	}
	s.Stop("")
	if verificationToken == "" {
		return errors.New("no token auth token found")
	}

	tokenName, err := makeTokenName()
	if err != nil {
		return errors.Wrap(err, "failed to make sso token name")
	}
	verifiedUser, err := base.APIClient.VerifySSOToken(verificationToken, tokenName)
	if err != nil {
		return errors.Wrap(err, "failed to verify SSO token")
	}

	base.APIClient.SetToken(verifiedUser.Token)
	if err := base.UserConfig.SetToken(verifiedUser.Token); err != nil {
		return errors.Wrap(err, "failed to save auth token")
	}
	userResponse, err := base.APIClient.GetUser()
	if err != nil {
		return errors.Wrap(err, "could not get user information")
	}

	base.UI.Output("")
	base.UI.Output(fmt.Sprintf("%s Turborepo CLI authorized for %s", ui.Rainbow(">>> Success!"), userResponse.User.Email))
	base.UI.Output("")

	if verifiedUser.TeamID != "" {
		if err := base.RepoConfig.SetTeamID(verifiedUser.TeamID); err != nil {
			return errors.Wrap(err, "failed to save teamId")
		}
	} else {
		base.UI.Output("To connect to your Remote Cache, run the following in the")
		base.UI.Output("root of any turborepo:")
		base.UI.Output("")
		base.UI.Output("  npx turbo link")
	}
	base.UI.Output("")

	return nil
}

func getTokenAndRedirect(params url.Values) (string, string) {
	locationStub := "https://vercel.com/notifications/cli-login-"
	if loginError := params.Get("loginError"); loginError != "" {
		outParams := make(url.Values)
		outParams.Add("loginError", loginError)
		return "", locationStub + "failed?" + outParams.Encode()
	}
	if ssoEmail := params.Get("ssoEmail"); ssoEmail != "" {
		outParams := make(url.Values)
		outParams.Add("ssoEmail", ssoEmail)
		if teamName := params.Get("teamName"); teamName != "" {
			outParams.Add("teamName", teamName)
		}
		if ssoType := params.Get("ssoType"); ssoType != "" {
			outParams.Add("ssoType", ssoType)
		}
		return "", locationStub + "incomplete?" + outParams.Encode()
	}
	token := params.Get("token")
	location := locationStub + "success"
	if email := params.Get("email"); email != "" {
		outParams := make(url.Values)
		outParams.Add("email", email)
		location += "?" + outParams.Encode()
	}
	return token, location
}

func newOneShotServer(ctx context.Context, handler http.HandlerFunc, port uint16) (*oneShotServer, error) {
	requestDone := make(chan struct{})
	serverDone := make(chan struct{})
	mux := http.NewServeMux()
	srv := &http.Server{Handler: mux}
	oss := &oneShotServer{
		Port:        port,
		requestDone: requestDone,
		serverDone:  serverDone,
		ctx:         ctx,
		srv:         srv,
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		handler(w, r)
		close(oss.requestDone)
	})
	if err := oss.start(handler); err != nil {
		return nil, err
	}
	return oss, nil
}

func (oss *oneShotServer) start(handler http.HandlerFunc) error {
	addr := defaultHostname + ":" + fmt.Sprint(oss.Port)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		if err := oss.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			oss.serverErr = errors.Wrap(err, "could not activate device. Please try again")
		}
		close(oss.serverDone)
	}()
	return nil
}

func (oss *oneShotServer) Wait() error {
	select {
	case <-oss.requestDone:
	case <-oss.ctx.Done():
	}
	return oss.closeServer()
}

func (oss *oneShotServer) closeServer() error {
	if err := oss.srv.Shutdown(oss.ctx); err != nil {
		return err
	}
	<-oss.serverDone
	return oss.serverErr
}

func makeTokenName() (string, error) {
	host, err := os.Hostname()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Turbo CLI on %v via %v", host, defaultSSOProvider), nil
}
