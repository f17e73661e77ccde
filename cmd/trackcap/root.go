package main

import (
	"fmt"
	"io"

	"github.com/genricoloni/trackcap/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const appName = "trackcap"

// version is set at build time
var version = "dev"

func newRootCmd() *cobra.Command {
	var cfgFile string

	load := func(cmd *cobra.Command) (*config.AppConfig, error) {
		v, err := config.NewViper(cmd.Flags(), cfgFile)
		if err != nil {
			return nil, err
		}
		cfg, err := config.Load(v)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, nil
	}

	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "Record the player's output, one file per track",
		Long: `trackcap records what an MPRIS media player (Spotify by default) plays
into one FLAC file per track. Every new track is rewound to its start
before the recording begins, and the recorder exits when playback is
paused or the playlist ends.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			if !cfg.SkipIntro {
				printIntro(cmd.OutOrStdout(), cfg)
			}
			return runDaemon(cfg)
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	config.RegisterFlags(rootCmd.PersistentFlags())

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("error marshaling config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})
	rootCmd.AddCommand(configCmd)

	return rootCmd
}

func printIntro(w io.Writer, cfg *config.AppConfig) {
	fmt.Fprintf(w, "%s %s\n", appName, version)
	fmt.Fprintln(w, "You should not pause, seek or change volume during recording!")
	fmt.Fprintln(w, "Existing files will be overridden!")
	fmt.Fprintln(w, "Use --help as argument to see all options.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Output directory:")
	fmt.Fprintln(w, cfg.GetOutputDir())
	fmt.Fprintln(w)
}
