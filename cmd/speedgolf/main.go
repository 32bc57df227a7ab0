package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"speedgolf/internal/cache"
	"speedgolf/internal/config"
	"speedgolf/internal/syncclient"
)

var (
	serverURL string
	cachePath string
	cfgFile   string
	timeout   time.Duration
	verbose   bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "speedgolf",
	Short: "Speedgolf round log client",
	Long: `speedgolf logs speedgolf rounds and edits your profile on a speedgolf server.

Your session and a copy of your data are kept in a local cache, so the
last known state is still shown when the server cannot be reached.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.speedgolf/config.yaml)")
	rootCmd.PersistentFlags().String("server", "", "speedgolf server URL (env SPEEDGOLF_SERVER)")
	rootCmd.PersistentFlags().String("cache", "", "local cache file (env SPEEDGOLF_CACHE)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "request timeout (env SPEEDGOLF_TIMEOUT, seconds)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log requests to stderr")

	rootCmd.AddCommand(loginCmd, logoutCmd, statusCmd, signupCmd, syncCmd, roundsCmd, accountCmd)
}

// loadSettings layers flags over the environment over the config file over
// built-in defaults.
func loadSettings(cmd *cobra.Command, _ []string) error {
	v := viper.New()
	env := config.LoadClientEnv()
	v.SetDefault("server", env.Server)
	v.SetDefault("cache", env.CachePath)
	v.SetDefault("timeout", env.Timeout)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(config.ConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	_ = v.BindEnv("server", "SPEEDGOLF_SERVER")
	_ = v.BindEnv("cache", "SPEEDGOLF_CACHE")
	for _, key := range []string{"server", "cache", "timeout"} {
		if err := v.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(key)); err != nil {
			return err
		}
	}

	serverURL = strings.TrimRight(v.GetString("server"), "/")
	cachePath = v.GetString("cache")
	timeout = v.GetDuration("timeout")
	if timeout <= 0 {
		timeout = env.Timeout
	}
	return nil
}

func newLogger(w io.Writer) zerolog.Logger {
	if !verbose {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger().
		Level(zerolog.DebugLevel)
}

// withClient opens the cache, restores the session and runs fn.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *syncclient.Client) error) error {
	if cachePath != "" {
		if err := os.MkdirAll(filepath.Dir(cachePath), 0o700); err != nil {
			return fmt.Errorf("create cache directory: %w", err)
		}
	}
	store, err := cache.Open(cachePath)
	if err != nil {
		return err
	}
	defer store.Close()

	client := syncclient.New(serverURL, store,
		syncclient.WithTimeout(timeout),
		syncclient.WithLogger(newLogger(cmd.ErrOrStderr())),
	)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	msg, err := client.Boot(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", msg, err)
	}
	if client.State().Offline {
		fmt.Fprintln(cmd.ErrOrStderr(), msg)
	}
	return fn(ctx, client)
}

// reporter prints the message of a client operation, or returns it as the
// command error so cobra exits non-zero.
func reporter(cmd *cobra.Command) func(msg string, err error) error {
	return func(msg string, err error) error {
		if err != nil {
			return errors.New(msg)
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	}
}

func requireLogin(c *syncclient.Client) error {
	if !c.State().Authenticated {
		return errors.New("not logged in, run: speedgolf login <account>")
	}
	return nil
}

// readSecret prompts on stderr and reads one line from in.
func readSecret(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
