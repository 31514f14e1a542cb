/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Seednode/davinci/lobby"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	archiveSize      int
	archiveTTL       time.Duration
	bind             string
	botContinueDelay time.Duration
	botDrawDelay     time.Duration
	botGuessDelay    time.Duration
	botResultDelay   time.Duration
	corsOrigins      []string
	port             int
	prefix           string
	profile          bool
	redisAddr        string
	redisDB          int
	redisPassword    string
	roomTimeout      time.Duration
	tlsCert          string
	tlsKey           string
	verbose          bool
	version          bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.archiveSize < 1 {
		return fmt.Errorf("invalid archive size (must be at least 1): %d", c.archiveSize)
	}
	if c.redisDB < 0 {
		return fmt.Errorf("invalid redis database (must not be negative): %d", c.redisDB)
	}

	for name, d := range map[string]time.Duration{
		"--archive-ttl":        c.archiveTTL,
		"--bot-continue-delay": c.botContinueDelay,
		"--bot-draw-delay":     c.botDrawDelay,
		"--bot-guess-delay":    c.botGuessDelay,
		"--bot-result-delay":   c.botResultDelay,
		"--room-timeout":       c.roomTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("invalid %s (must not be negative): %s", name, d)
		}
	}

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func (c *Config) botDelays() lobby.Delays {
	return lobby.Delays{
		Draw:     c.botDrawDelay,
		Guess:    c.botGuessDelay,
		Result:   c.botResultDelay,
		Continue: c.botContinueDelay,
	}
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("DAVINCI")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "davinci",
		Short:         "Serves the Da Vinci Code card game over websockets.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	defaults := lobby.DefaultDelays()

	fs.IntVar(&cfg.archiveSize, "archive-size", 100, "number of finished games to keep (env: DAVINCI_ARCHIVE_SIZE)")
	fs.DurationVar(&cfg.archiveTTL, "archive-ttl", 7*24*time.Hour, "time finished games are kept in redis, 0 to keep forever (env: DAVINCI_ARCHIVE_TTL)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: DAVINCI_BIND)")
	fs.DurationVar(&cfg.botContinueDelay, "bot-continue-delay", defaults.Continue, "pause before a bot continues after a correct guess (env: DAVINCI_BOT_CONTINUE_DELAY)")
	fs.DurationVar(&cfg.botDrawDelay, "bot-draw-delay", defaults.Draw, "pause before a bot draws (env: DAVINCI_BOT_DRAW_DELAY)")
	fs.DurationVar(&cfg.botGuessDelay, "bot-guess-delay", defaults.Guess, "pause before a bot guesses (env: DAVINCI_BOT_GUESS_DELAY)")
	fs.DurationVar(&cfg.botResultDelay, "bot-result-delay", defaults.Result, "pause while a bot's guess result is shown (env: DAVINCI_BOT_RESULT_DELAY)")
	fs.StringSliceVar(&cfg.corsOrigins, "cors-origin", []string{"*"}, "origins allowed to call the JSON endpoints (env: DAVINCI_CORS_ORIGIN)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: DAVINCI_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: DAVINCI_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: DAVINCI_PROFILE)")
	fs.StringVar(&cfg.redisAddr, "redis-addr", "", "redis address for the game archive, in-memory if unset (env: DAVINCI_REDIS_ADDR)")
	fs.IntVar(&cfg.redisDB, "redis-db", 0, "redis database number (env: DAVINCI_REDIS_DB)")
	fs.StringVar(&cfg.redisPassword, "redis-password", "", "redis password (env: DAVINCI_REDIS_PASSWORD)")
	fs.DurationVar(&cfg.roomTimeout, "room-timeout", 60*time.Minute, "time before idle rooms are closed, 0 to disable (env: DAVINCI_ROOM_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: DAVINCI_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: DAVINCI_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: DAVINCI_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: DAVINCI_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("davinci v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
