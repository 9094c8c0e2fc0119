// Package commands implements the edcctl command tree.
package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sternrassler/edc-client/pkg/config"
	"github.com/Sternrassler/edc-client/pkg/edc"
	"github.com/Sternrassler/edc-client/pkg/logging"
)

// app carries state shared by every command of one invocation.
type app struct {
	configFile string
	output     string

	cfg   *config.Config
	sdk   *edc.SDK
	redis *redis.Client
}

// flagKeys maps persistent flags to configuration keys.
var flagKeys = map[string]string{
	"base-url":     config.KeyBaseURL,
	"api-key":      config.KeyAPIKey,
	"security-key": config.KeySecurityKey,
	"study":        config.KeyStudyKey,
	"retries":      config.KeyRetries,
	"timeout":      config.KeyTimeout,
	"redis-url":    config.KeyRedisURL,
	"log-level":    config.KeyLogLevel,
}

// NewRootCommand builds the edcctl command tree.
func NewRootCommand(version, commit, date string) *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "edcctl",
		Short: "EDC API command-line client",
		Long: `A command-line interface for the clinical trial EDC REST API.

Credentials and defaults are read from flags, EDC_* environment variables
and an optional YAML config file, in that order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipSetup] == "true" {
				return nil
			}
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.redis != nil {
				_ = a.redis.Close()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "config file (YAML)")
	flags.StringVarP(&a.output, "output", "o", OutputFormatTable, "output format (table, json, yaml)")
	flags.String("base-url", "", "EDC API base URL")
	flags.String("api-key", "", "API key")
	flags.String("security-key", "", "security key")
	flags.StringP("study", "s", "", "default study key")
	flags.Int("retries", 0, "retries for transient failures")
	flags.Duration("timeout", 0, "per-request timeout")
	flags.String("redis-url", "", "redis URL for the shared list cache")
	flags.String("log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newVersionCommand(version, commit, date))
	rootCmd.AddCommand(newStudiesCommand(a))
	rootCmd.AddCommand(newSitesCommand(a))
	rootCmd.AddCommand(newSubjectsCommand(a))
	rootCmd.AddCommand(newFormsCommand(a))
	rootCmd.AddCommand(newVariablesCommand(a))
	rootCmd.AddCommand(newRecordsCommand(a))
	rootCmd.AddCommand(newJobsCommand(a))

	return rootCmd
}

// ErrStudyRequired is returned by commands that need a study key.
var ErrStudyRequired = errors.New("study key is required (use --study or EDC_STUDY_KEY)")

// studyKey returns the configured study key.
func (a *app) studyKey() (string, error) {
	if a.cfg == nil || a.cfg.StudyKey == "" {
		return "", ErrStudyRequired
	}
	return a.cfg.StudyKey, nil
}

// skipSetup marks commands that need no configuration.
const skipSetup = "skip-setup"

func (a *app) setup(cmd *cobra.Command) error {
	v, err := config.NewViper(a.configFile)
	if err != nil {
		return err
	}
	if err := bindFlags(v, cmd); err != nil {
		return err
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logCfg := cfg.LoggingConfig()
	logCfg.Output = cmd.ErrOrStderr()
	logging.Setup(logCfg)

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		a.redis = redis.NewClient(opts)
		if err := a.redis.Ping(cmd.Context()).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
	}

	var rdb redis.UniversalClient
	if a.redis != nil {
		rdb = a.redis
	}
	a.sdk, err = edc.NewFromConfig(cfg, rdb)
	return err
}

// bindFlags binds only flags the user set, so unset flags never mask
// environment or file values.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newVersionCommand(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{skipSetup: "true"},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "edcctl %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
