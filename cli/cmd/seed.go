package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/threatlens/cli/internal/client"
	"github.com/telhawk-systems/threatlens/cli/internal/seeder"
	"github.com/telhawk-systems/threatlens/cli/pkg/output"
)

// maxSeedBatch matches the correlator's intake limit.
const maxSeedBatch = 1000

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Send synthetic attack campaigns to the correlator",
	Long: `Generate synthetic security events grouped into attack campaigns and
post them to the correlator's intake endpoint.

Each origin runs one scenario (credential_stuffing, reconnaissance,
injection, malware, ddos, multi_vector). Noise events are uncorrelated.`,
	Example: `  threatctl seed --origins 10 --noise 20
  threatctl seed --scenario credential_stuffing --seed 42 --dry-run -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		gen, err := buildGenerator(cmd)
		if err != nil {
			return err
		}
		events := gen.Generate()

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if dryRun {
			if handled, err := output.Structured(outputFormat(cmd), events); handled {
				return err
			}
			output.Info("Generated %d events (dry run, nothing sent)", len(events))
			return nil
		}

		batchSize, _ := cmd.Flags().GetInt("batch-size")
		if batchSize <= 0 || batchSize > maxSeedBatch {
			return fmt.Errorf("--batch-size must be between 1 and %d", maxSeedBatch)
		}

		c := newClient(cmd)
		accepted, duplicates := 0, 0
		for i, batch := range seeder.Batches(events, batchSize) {
			resp, err := c.IngestEvents(batch)
			if err != nil {
				var apiErr *client.APIError
				if errors.As(err, &apiErr) {
					for _, d := range apiErr.Details {
						output.Error("%s", d)
					}
				}
				return fmt.Errorf("batch %d failed: %w", i+1, err)
			}
			accepted += resp.Accepted
			duplicates += resp.Duplicates
		}

		output.Success("Sent %d events (%d accepted, %d duplicates)", len(events), accepted, duplicates)
		return nil
	},
}

func buildGenerator(cmd *cobra.Command) (*seeder.Generator, error) {
	cfg := seeder.DefaultConfig()
	cfg.Origins, _ = cmd.Flags().GetInt("origins")
	cfg.MinEventsPerOrigin, _ = cmd.Flags().GetInt("min-events")
	cfg.MaxEventsPerOrigin, _ = cmd.Flags().GetInt("max-events")
	cfg.Noise, _ = cmd.Flags().GetInt("noise")
	cfg.Spread, _ = cmd.Flags().GetDuration("spread")
	cfg.Seed, _ = cmd.Flags().GetInt64("seed")

	names, _ := cmd.Flags().GetStringSlice("scenario")
	for _, name := range names {
		s, ok := findScenario(name)
		if !ok {
			return nil, fmt.Errorf("unknown scenario %q (available: %s)", name, strings.Join(scenarioNames(), ", "))
		}
		cfg.Scenarios = append(cfg.Scenarios, s)
	}

	return seeder.NewGenerator(cfg)
}

func findScenario(name string) (seeder.Scenario, bool) {
	for _, s := range seeder.DefaultScenarios {
		if s.Name == name {
			return s, true
		}
	}
	return seeder.Scenario{}, false
}

func scenarioNames() []string {
	names := make([]string, len(seeder.DefaultScenarios))
	for i, s := range seeder.DefaultScenarios {
		names[i] = s.Name
	}
	return names
}

func init() {
	rootCmd.AddCommand(seedCmd)

	d := seeder.DefaultConfig()
	seedCmd.Flags().Int("origins", d.Origins, "number of attacking origins")
	seedCmd.Flags().Int("min-events", d.MinEventsPerOrigin, "minimum events per origin")
	seedCmd.Flags().Int("max-events", d.MaxEventsPerOrigin, "maximum events per origin")
	seedCmd.Flags().Int("noise", d.Noise, "uncorrelated background events")
	seedCmd.Flags().Duration("spread", d.Spread, "spread event timestamps over this window before now")
	seedCmd.Flags().Int64("seed", 0, "random seed for reproducible runs (0 = random)")
	seedCmd.Flags().StringSlice("scenario", nil, "restrict origins to these scenarios")
	seedCmd.Flags().Int("batch-size", 500, "events per intake request")
	seedCmd.Flags().Bool("dry-run", false, "print generated events instead of sending them")
}
