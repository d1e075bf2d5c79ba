package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/threatlens/cli/pkg/output"
)

var attacksCmd = &cobra.Command{
	Use:   "attacks",
	Short: "List simulated attacks",
	Long:  "List the attacks currently tracked by the simulation, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newClient(cmd).ListAttacks()
		if err != nil {
			return fmt.Errorf("failed to list attacks: %w", err)
		}

		if handled, err := output.Structured(outputFormat(cmd), resp); handled {
			return err
		}

		if !resp.Running {
			output.Warn("Simulation is stopped")
		}
		if len(resp.Attacks) == 0 {
			output.Info("No attacks in flight")
			return nil
		}

		table := output.NewTable([]string{"Type", "Source", "Target", "Severity", "Status", "Progress"})
		for _, a := range resp.Attacks {
			table.AddRow([]string{
				a.AttackType,
				a.SourceAddress,
				a.TargetLabel,
				a.Severity,
				a.Status,
				fmt.Sprintf("%.0f%%", a.Progress),
			})
		}
		table.Render()
		return nil
	},
}

var defenseCmd = &cobra.Command{
	Use:   "defense",
	Short: "Show simulated defense metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newClient(cmd).Defense()
		if err != nil {
			return fmt.Errorf("failed to get defense metrics: %w", err)
		}

		if handled, err := output.Structured(outputFormat(cmd), m); handled {
			return err
		}

		output.Info("Blocked:       %d", m.BlockedCount)
		output.Info("Mitigated:     %d", m.MitigatedCount)
		output.Info("Threat level:  %.0f", m.ThreatLevel)
		output.Info("Active nodes:  %d", m.ActiveNodeCount)
		output.Info("Uptime:        %.2f%%", m.UptimeFraction*100)
		return nil
	},
}

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Control the attack simulation",
}

func simActionCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient(cmd).Simulation(action)
			if err != nil {
				return fmt.Errorf("failed to %s simulation: %w", action, err)
			}

			if handled, err := output.Structured(outputFormat(cmd), resp); handled {
				return err
			}

			state := "stopped"
			if resp.Running {
				state = "running"
			}
			output.Success("Simulation %s (now %s)", action, state)
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(attacksCmd)
	rootCmd.AddCommand(defenseCmd)
	rootCmd.AddCommand(simCmd)

	simCmd.AddCommand(simActionCmd("start", "Start generating and progressing attacks"))
	simCmd.AddCommand(simActionCmd("stop", "Pause the simulation, keeping its state"))
	simCmd.AddCommand(simActionCmd("reset", "Clear attacks and restore default metrics"))
}
