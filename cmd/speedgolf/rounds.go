package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"speedgolf/internal/models"
	"speedgolf/internal/syncclient"
)

var roundsCmd = &cobra.Command{
	Use:   "rounds",
	Short: "List and edit logged rounds",
}

var roundsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show your rounds with their speedgolf score",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(_ context.Context, c *syncclient.Client) error {
			if err := requireLogin(c); err != nil {
				return err
			}
			return printRounds(cmd.OutOrStdout(), c.State().User.Rounds)
		})
	},
}

var roundsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Log a new round",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *syncclient.Client) error {
			if err := requireLogin(c); err != nil {
				return err
			}
			fields := models.RoundFields{Date: time.Now().Format("2006-01-02"), Type: "practice", Holes: 18}
			if err := applyRoundFlags(cmd.Flags(), &fields); err != nil {
				return err
			}
			return reporter(cmd)(c.AddRound(ctx, fields))
		})
	},
}

var roundsUpdateCmd = &cobra.Command{
	Use:   "update <number>",
	Short: "Change a logged round; only the given flags are changed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *syncclient.Client) error {
			round, err := selectRound(c, args[0])
			if err != nil {
				return err
			}
			fields := round.RoundFields
			if err := applyRoundFlags(cmd.Flags(), &fields); err != nil {
				return err
			}
			return reporter(cmd)(c.UpdateRound(ctx, round.ID, fields))
		})
	},
}

var roundsDeleteCmd = &cobra.Command{
	Use:   "delete <number>",
	Short: "Delete a logged round",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *syncclient.Client) error {
			round, err := selectRound(c, args[0])
			if err != nil {
				return err
			}
			return reporter(cmd)(c.DeleteRound(ctx, round.ID))
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{roundsAddCmd, roundsUpdateCmd} {
		cmd.Flags().String("date", "", "date played, YYYY-MM-DD")
		cmd.Flags().String("course", "", "course name")
		cmd.Flags().String("type", "", "round type, e.g. practice or tournament")
		cmd.Flags().Int("holes", 0, "holes played (1-18)")
		cmd.Flags().Int("strokes", 0, "strokes taken")
		cmd.Flags().Int("minutes", 0, "minutes of the time taken")
		cmd.Flags().Int("seconds", 0, "seconds of the time taken (0-59)")
		cmd.Flags().String("notes", "", "free text notes")
	}
	_ = roundsAddCmd.MarkFlagRequired("course")
	_ = roundsAddCmd.MarkFlagRequired("strokes")
	_ = roundsAddCmd.MarkFlagRequired("minutes")

	roundsCmd.AddCommand(roundsListCmd, roundsAddCmd, roundsUpdateCmd, roundsDeleteCmd)
}

// applyRoundFlags copies the flags the user set into fields.
func applyRoundFlags(flags *pflag.FlagSet, fields *models.RoundFields) error {
	var err error
	flags.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "date":
			fields.Date = f.Value.String()
		case "course":
			fields.Course = f.Value.String()
		case "type":
			fields.Type = f.Value.String()
		case "notes":
			fields.Notes = f.Value.String()
		case "holes":
			fields.Holes, err = strconv.Atoi(f.Value.String())
		case "strokes":
			fields.Strokes, err = strconv.Atoi(f.Value.String())
		case "minutes":
			fields.Minutes, err = strconv.Atoi(f.Value.String())
		case "seconds":
			fields.Seconds, err = strconv.Atoi(f.Value.String())
		}
	})
	return err
}

// selectRound resolves the 1-based number shown by "rounds list".
func selectRound(c *syncclient.Client, arg string) (models.Round, error) {
	if err := requireLogin(c); err != nil {
		return models.Round{}, err
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return models.Round{}, fmt.Errorf("round number %q: %w", arg, err)
	}
	if err := c.SelectRound(n - 1); err != nil || n < 1 {
		return models.Round{}, fmt.Errorf("no round number %d, see: speedgolf rounds list", n)
	}
	return c.State().User.Rounds[n-1], nil
}

func printRounds(out io.Writer, rounds []models.Round) error {
	if len(rounds) == 0 {
		_, err := fmt.Fprintln(out, "No rounds logged")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tDATE\tCOURSE\tTYPE\tHOLES\tSGS\tNOTES")
	for i, r := range rounds {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
			i+1, r.Date, r.Course, r.Type, r.Holes, r.SpeedgolfScore(), r.Notes)
	}
	return w.Flush()
}
