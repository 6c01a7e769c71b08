package main

import (
	"fmt"

	"github.com/drlrcc/torcs-driver/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var configDir string

// flagKeys maps flags to the config keys they override.
var flagKeys = map[string]string{
	"host":      "session.host",
	"port":      "session.port",
	"id":        "session.id",
	"steps":     "session.maxSteps",
	"episodes":  "session.maxEpisodes",
	"track":     "session.track",
	"stage":     "session.stage",
	"debug":     "session.debug",
	"max-speed": "session.maxSpeed",
	"learned":   "policy.learned",
	"model":     "policy.model",
	"storage":   "storage.type",
}

func addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&configDir, "config-dir", ".", "Directory holding "+config.ConfigFileName)

	fs.StringP("host", "H", "localhost", "Simulator host")
	fs.IntP("port", "p", 3001, "Simulator port")
	fs.StringP("id", "i", "SCR", "Session id sent in the identification request")
	fs.IntP("steps", "m", 100000, "Maximum steps per episode, 0 for no limit")
	fs.IntP("episodes", "e", 1, "Maximum learning episodes")
	fs.StringP("track", "t", "unknown", "Track name")
	fs.IntP("stage", "s", 3, "Race stage: 0 warm-up, 1 qualifying, 2 race, 3 unknown")
	fs.BoolP("debug", "d", false, "Show live telemetry bar graphs")
	fs.Float64("max-speed", 30, "Target speed of the baseline driver")
	fs.BoolP("learned", "x", false, "Steer with the learned model")
	fs.String("model", "", "Learned steering model file")
	fs.String("storage", "memory", "Episode storage: memory, sqlite, postgres or websocket")
}

func bindFlags(fs *pflag.FlagSet) error {
	for flag, key := range flagKeys {
		if err := viper.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return fmt.Errorf("binding --%s: %w", flag, err)
		}
	}
	return nil
}

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     BinaryName,
		Short:   "Drive a TORCS car over the SCR protocol and record training episodes",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildDate),
		Args:    cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(configDir); err != nil {
				cmd.PrintErrln("Config file not loaded, using defaults:", err)
			}
			if err := bindFlags(cmd.Flags()); err != nil {
				return err
			}
			return config.GetSessionConfig().Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// past validation, failures are runtime errors and not usage errors
			cmd.SilenceUsage = true
			return run(cmd.Context(), cmd.OutOrStdout())
		},
	}
	addFlags(cmd.Flags())
	return cmd
}
