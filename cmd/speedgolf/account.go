package main

import (
	"context"

	"github.com/spf13/cobra"

	"speedgolf/internal/syncclient"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage your account",
}

var accountUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Edit your account, identity or speedgolf profile",
	Long: `update changes the sections of your profile you pass flags for.

Renaming the account with --id moves your session to the new identifier.
An empty --password keeps the current password.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *syncclient.Client) error {
			if err := requireLogin(c); err != nil {
				return err
			}
			return reporter(cmd)(c.UpdateUserAccount(ctx, accountUpdateFromFlags(cmd)))
		})
	},
}

func init() {
	f := accountUpdateCmd.Flags()
	f.String("id", "", "new account identifier")
	f.String("password", "", "new password")
	f.String("security-question", "", "security question")
	f.String("security-answer", "", "security answer")
	f.String("display-name", "", "display name")
	f.String("profile-pic", "", "profile picture URL")
	f.String("bio", "", "speedgolf bio")
	f.String("home-course", "", "home course")
	f.StringSlice("clubs", nil, "clubs in the bag")
	f.String("club-comments", "", "comments on the clubs")

	accountCmd.AddCommand(accountUpdateCmd)
}

// accountUpdateFromFlags patches only the fields whose flags were set. Sections
// without a set flag are left out.
func accountUpdateFromFlags(cmd *cobra.Command) syncclient.AccountUpdate {
	flags := cmd.Flags()
	str := func(name string) *string {
		if !flags.Changed(name) {
			return nil
		}
		v, _ := flags.GetString(name)
		return &v
	}

	var update syncclient.AccountUpdate
	account := syncclient.AccountDataPatch{
		ID:               str("id"),
		Password:         str("password"),
		SecurityQuestion: str("security-question"),
		SecurityAnswer:   str("security-answer"),
	}
	if account != (syncclient.AccountDataPatch{}) {
		update.AccountData = &account
	}
	identity := syncclient.IdentityDataPatch{
		DisplayName: str("display-name"),
		ProfilePic:  str("profile-pic"),
	}
	if identity != (syncclient.IdentityDataPatch{}) {
		update.IdentityData = &identity
	}
	sg := syncclient.SpeedgolfDataPatch{
		Bio:          str("bio"),
		HomeCourse:   str("home-course"),
		ClubComments: str("club-comments"),
	}
	if flags.Changed("clubs") {
		clubs, _ := flags.GetStringSlice("clubs")
		sg.Clubs = &clubs
	}
	if sg != (syncclient.SpeedgolfDataPatch{}) {
		update.SpeedgolfData = &sg
	}
	return update
}
