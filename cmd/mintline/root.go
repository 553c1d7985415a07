package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/aretw0/mintline/internal/cli"
	"github.com/aretw0/mintline/internal/config"
	"github.com/spf13/cobra"
)

// defaultConfigFile is read when --config is not given and the file exists.
const defaultConfigFile = "mintline.yaml"

var rootCmd = &cobra.Command{
	Use:   "mintline",
	Short: "Mintline orchestrates token issuance on a Stellar-style ledger",
	Long: `Mintline drives the issuance of a creator token from request to distribution:
it prepares the distribution account, waits for the trustline, asks the issuer
to sign the emission and splits the supply between creator and platform.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML or JSON config file (default ./"+defaultConfigFile+" when present)")
	rootCmd.PersistentFlags().String("log-level", "", "Override log.level")
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		} else if !errors.Is(err, os.ErrNotExist) {
			return config.Config{}, err
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	return cfg, nil
}

// buildApp loads the configuration and assembles the service on the command's streams.
func buildApp(cmd *cobra.Command) (*cli.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return cli.Build(cmd.Context(), cfg, cli.IO{
		In:  cmd.InOrStdin(),
		Out: cmd.OutOrStdout(),
		Err: cmd.ErrOrStderr(),
	})
}
