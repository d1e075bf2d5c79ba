package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/threatlens/cli/internal/client"
	"github.com/telhawk-systems/threatlens/cli/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "threatctl",
	Short: "ThreatLens correlator CLI",
	Long: `threatctl is the command-line interface for the ThreatLens correlator.

Inspect correlated threats and patterns, control the attack simulation,
and seed synthetic security events from your terminal.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.threatctl/config.yaml)")
	rootCmd.PersistentFlags().String("profile", "", "profile to use (default: current profile)")
	rootCmd.PersistentFlags().String("server", "", "correlator URL, overrides the profile")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "output format: table, json, yaml")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.Default()
	}
}

// newClient builds a correlator client from --server or the active profile.
func newClient(cmd *cobra.Command) *client.CorrelatorClient {
	if server, _ := cmd.Flags().GetString("server"); server != "" {
		return client.NewCorrelatorClient(server)
	}
	profile, _ := cmd.Flags().GetString("profile")
	return client.NewCorrelatorClient(cfg.ServerURL(profile))
}

func outputFormat(cmd *cobra.Command) string {
	format, _ := cmd.Flags().GetString("output")
	return format
}
