package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()
	ec, err := loadEnv()
	if err != nil {
		newLogger(false).err(err.Error())
		os.Exit(1)
	}
	root := newRootCmd(ec)
	if err := root.ExecuteContext(context.Background()); err != nil {
		newLogger(ec.Debug).err(err.Error())
		os.Exit(1)
	}
}

// app holds the wired components for one command invocation.
type app struct {
	log          *logger
	cfg          appConfig
	configPath   string
	clock        clock
	cache        *cacheStore
	remote       *remote
	leaderboards *leaderboards
	puzzles      *puzzles
	submitter    *submitter
}

func newApp(ec envConfig, verbose bool) (*app, error) {
	log := newLogger(verbose || ec.Debug)
	configDir, dataDir, err := resolveDirs(ec)
	if err != nil {
		return nil, err
	}
	configPath := filepath.Join(configDir, configFileName)
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if ec.BaseURL != "" {
		cfg.BaseURL = ec.BaseURL
	}

	clk := systemClock{}
	cache, err := newCacheStore(dataDir, clk)
	if err != nil {
		return nil, err
	}
	api, err := newAPIClient(cfg)
	if err != nil {
		return nil, err
	}
	login := newInteractiveLogin(os.Stdin, os.Stderr, cfg.BaseURL, mostRecentYear(clk.Now()))
	r := &remote{
		api:     api,
		session: newSessionManager(dataDir, ec.Session, login, log),
		log:     log,
	}
	pz := &puzzles{remote: r, cache: cache, clock: clk, log: log}
	return &app{
		log:          log,
		cfg:          cfg,
		configPath:   configPath,
		clock:        clk,
		cache:        cache,
		remote:       r,
		leaderboards: &leaderboards{remote: r, cache: cache, ttl: time.Duration(cfg.TTL) * time.Second, log: log},
		puzzles:      pz,
		submitter:    newSubmitter(r, pz, clk, log, os.Stderr),
	}, nil
}

func newRootCmd(ec envConfig) *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:   "aocstat",
		Short: "Interact with Advent of Code from your terminal",
		Long: `aocstat - Advent of Code leaderboards and puzzles in your terminal

Leaderboards and puzzles are cached locally so repeated invocations do not
hit the server. Private boards are refreshed at most once per ttl seconds
(see 'aocstat config').`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	build := func() (*app, error) { return newApp(ec, verbose) }
	root.AddCommand(
		newLeaderboardCmd(build),
		newPuzzleCmd(build),
		newPurgeCmd(build),
		newConfigCmd(build),
	)
	return root
}

func newLeaderboardCmd(build func() (*app, error)) *cobra.Command {
	var (
		year   int
		id     int
		global bool
		day    string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "lb",
		Short: "View a private or global leaderboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := build()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if year == 0 {
				year = mostRecentYear(a.clock.Now())
			}
			if year < firstEventYear || year > mostRecentYear(a.clock.Now()) {
				return fmt.Errorf("year must be between %d and %d", firstEventYear, mostRecentYear(a.clock.Now()))
			}
			out := cmd.OutOrStdout()

			if global || day != "" {
				scope, err := parseDayScope(day, year)
				if err != nil {
					return err
				}
				if !scope.whole() {
					if err := checkUnlocked(a.clock.Now(), year, scope.Day); err != nil {
						return err
					}
				}
				snap, cachedAt, err := a.leaderboards.Global(ctx, year, scope, force)
				if err != nil {
					return err
				}
				writeCachedNote(out, cachedAt)
				writeGlobalBoard(out, snap)
				return nil
			}

			if id == 0 {
				id = a.cfg.defaultLeaderboardID()
			}
			if id == 0 {
				if id, err = userID(ctx, a.remote, a.cache, year); err != nil {
					return fmt.Errorf("resolve default leaderboard: %w", err)
				}
			}
			snap, cachedAt, err := a.leaderboards.Private(ctx, id, year, force)
			if err != nil {
				return err
			}
			writeCachedNote(out, cachedAt)
			writePrivateBoard(out, snap)
			return nil
		},
	}
	cmd.Flags().IntVarP(&year, "year", "y", 0, "event year (default: most recent event)")
	cmd.Flags().IntVar(&id, "id", 0, "private leaderboard id (default: last of leaderboard_ids, else your own board)")
	cmd.Flags().BoolVarP(&global, "global", "g", false, "view the global leaderboard")
	cmd.Flags().StringVarP(&day, "day", "d", "", "global leaderboard for one day and part, as 'd:p' (implies --global)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "refresh even if the cache is within ttl (please use sparingly)")
	cmd.MarkFlagsMutuallyExclusive("id", "global")
	cmd.MarkFlagsMutuallyExclusive("id", "day")
	return cmd
}

func newPuzzleCmd(build func() (*app, error)) *cobra.Command {
	var year, day, part int
	var wait bool

	resolve := func(a *app) error {
		now := a.clock.Now()
		if year == 0 {
			year = mostRecentYear(now)
		}
		if day == 0 {
			d, err := mostRecentDay(now, year)
			if err != nil {
				return err
			}
			day = d
		}
		return nil
	}

	cmd := &cobra.Command{
		Use:   "pz",
		Short: "View puzzles, fetch inputs and submit answers",
	}
	cmd.PersistentFlags().IntVarP(&year, "year", "y", 0, "puzzle year (default: most recent event)")
	cmd.PersistentFlags().IntVarP(&day, "day", "d", 0, "puzzle day (default: most recent day)")
	cmd.PersistentFlags().IntVarP(&part, "part", "p", 1, "puzzle part (1 or 2)")

	view := &cobra.Command{
		Use:   "view",
		Short: "View puzzle instructions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := build()
			if err != nil {
				return err
			}
			if err := resolve(a); err != nil {
				return err
			}
			c, cachedAt, err := a.puzzles.Puzzle(cmd.Context(), year, day, part)
			if errors.Is(err, ErrNotYetAvailable) {
				return fmt.Errorf("the puzzle you are trying to view is not available to you yet: %w", err)
			}
			if err != nil {
				return err
			}
			writeCachedNote(cmd.ErrOrStderr(), cachedAt)
			writePuzzle(cmd.OutOrStdout(), c)
			return nil
		},
	}
	input := &cobra.Command{
		Use:   "input",
		Short: "Print your puzzle input",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := build()
			if err != nil {
				return err
			}
			if err := resolve(a); err != nil {
				return err
			}
			text, _, err := a.puzzles.Input(cmd.Context(), year, day)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), text)
			return err
		},
	}
	submit := &cobra.Command{
		Use:   "submit ANSWER",
		Short: "Submit an answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build()
			if err != nil {
				return err
			}
			if err := resolve(a); err != nil {
				return err
			}
			var res submissionResult
			if wait {
				res, err = a.submitter.SubmitAndWait(cmd.Context(), year, day, part, args[0])
			} else {
				res, err = a.submitter.Submit(cmd.Context(), year, day, part, args[0])
			}
			if err != nil {
				return err
			}
			writeSubmission(cmd.OutOrStdout(), res)
			return nil
		},
	}
	submit.Flags().BoolVarP(&wait, "wait", "w", false, "if rate limited, wait out the cooldown and resubmit once")

	cmd.AddCommand(view, input, submit)
	return cmd
}

func newPurgeCmd(build func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Purge the local cache (including the saved session)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := build()
			if err != nil {
				return err
			}
			if err := a.cache.purgeAll(); err != nil {
				return err
			}
			a.log.ok("cache purged")
			return nil
		},
	}
}

func newConfigCmd(build func() (*app, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and edit config values",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List all config values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := build()
			if err != nil {
				return err
			}
			for _, k := range configKeys {
				v, _ := a.cfg.get(k)
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", k, v)
			}
			return nil
		},
	}
	get := &cobra.Command{
		Use:       "get KEY",
		Short:     "Print a config value",
		Args:      cobra.ExactArgs(1),
		ValidArgs: configKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build()
			if err != nil {
				return err
			}
			v, err := a.cfg.get(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), v)
			return err
		},
	}
	set := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a config value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build()
			if err != nil {
				return err
			}
			// Edit the file's contents, not the env-adjusted view.
			cfg, err := loadConfig(a.configPath)
			if err != nil {
				return err
			}
			if err := cfg.set(args[0], args[1]); err != nil {
				return err
			}
			if err := saveConfig(a.configPath, cfg); err != nil {
				return err
			}
			v, _ := cfg.get(args[0])
			a.log.okf("%s = %s", args[0], v)
			return nil
		},
	}
	var resetKey string
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Reset one config value, or all of them, to the default",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := build()
			if err != nil {
				return err
			}
			keys := configKeys
			if resetKey != "" {
				keys = []string{resetKey}
			}
			cfg, err := loadConfig(a.configPath)
			if err != nil {
				return err
			}
			for _, k := range keys {
				if err := cfg.reset(k); err != nil {
					return err
				}
			}
			if err := saveConfig(a.configPath, cfg); err != nil {
				return err
			}
			a.log.infof("reset to defaults: %s", strings.Join(keys, ", "))
			return nil
		},
	}
	reset.Flags().StringVarP(&resetKey, "key", "k", "", "key to reset (default: all keys)")

	cmd.AddCommand(list, get, set, reset)
	return cmd
}
