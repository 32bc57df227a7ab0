package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"speedgolf/internal/syncclient"
)

var (
	loginPassword string
	loginToken    string
)

var loginCmd = &cobra.Command{
	Use:   "login [account]",
	Short: "Log in with a local account or a third-party login token",
	Long: `login starts a session and caches your data locally.

Use --token with the token shown after a Google or GitHub login in the
browser:

  speedgolf login --token eyJhbGciOi...`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *syncclient.Client) error {
			if loginToken != "" {
				return reporter(cmd)(c.LoginWithToken(ctx, loginToken))
			}
			if len(args) == 0 {
				return fmt.Errorf("account is required unless --token is given")
			}
			password := loginPassword
			if password == "" {
				var err error
				if password, err = readSecret(cmd, "Password: "); err != nil {
					return err
				}
			}
			return reporter(cmd)(c.Login(ctx, args[0], password))
		})
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "password (prompted when empty)")
	loginCmd.Flags().StringVar(&loginToken, "token", "", "session token from a third-party login")
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and clear the local cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *syncclient.Client) error {
			return reporter(cmd)(c.Logout(ctx))
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the logged in account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(_ context.Context, c *syncclient.Client) error {
			state := c.State()
			out := cmd.OutOrStdout()
			if !state.Authenticated {
				fmt.Fprintln(out, "Not logged in.")
				return nil
			}
			user := state.User
			fmt.Fprintf(out, "Account:      %s\n", user.AccountData.ID)
			fmt.Fprintf(out, "Name:         %s\n", user.IdentityData.DisplayName)
			if user.SpeedgolfData.HomeCourse != "" {
				fmt.Fprintf(out, "Home course:  %s\n", user.SpeedgolfData.HomeCourse)
			}
			fmt.Fprintf(out, "Rounds:       %d\n", user.RoundsLogged)
			if !user.AccountData.LocallyOwned() {
				fmt.Fprintln(out, "Login:        third party")
			}
			if state.Offline {
				fmt.Fprintln(out, "Server:       unreachable, showing cached data")
			}
			return nil
		})
	},
}

var (
	signupPassword string
	signupName     string
	signupQuestion string
	signupAnswer   string
)

var signupCmd = &cobra.Command{
	Use:   "signup <account>",
	Short: "Create a local account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *syncclient.Client) error {
			id := strings.TrimSpace(args[0])
			exists, err := c.AccountExists(ctx, id)
			if err != nil {
				return fmt.Errorf("check account: %w", err)
			}
			if exists {
				return fmt.Errorf("an account with id %s already exists", id)
			}

			password := signupPassword
			if password == "" {
				if password, err = readSecret(cmd, "Password: "); err != nil {
					return err
				}
			}
			return reporter(cmd)(c.CreateAccount(ctx, syncclient.NewAccount{
				ID:               id,
				Password:         password,
				SecurityQuestion: signupQuestion,
				SecurityAnswer:   signupAnswer,
				DisplayName:      signupName,
			}))
		})
	},
}

func init() {
	signupCmd.Flags().StringVarP(&signupPassword, "password", "p", "", "password (prompted when empty)")
	signupCmd.Flags().StringVar(&signupName, "name", "", "display name (defaults to the account id)")
	signupCmd.Flags().StringVar(&signupQuestion, "security-question", "", "security question")
	signupCmd.Flags().StringVar(&signupAnswer, "security-answer", "", "security answer")
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull the latest account data from the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *syncclient.Client) error {
			if err := requireLogin(c); err != nil {
				return err
			}
			return reporter(cmd)(c.Refresh(ctx))
		})
	},
}
