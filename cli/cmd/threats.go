package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/threatlens/cli/pkg/output"
)

var threatsCmd = &cobra.Command{
	Use:     "threats",
	Aliases: []string{"th"},
	Short:   "List correlated threats",
	Long:    "List the threats produced by the most recent correlation pass, highest score first",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")

		resp, err := newClient(cmd).ListThreats(status)
		if err != nil {
			return fmt.Errorf("failed to list threats: %w", err)
		}

		if handled, err := output.Structured(outputFormat(cmd), resp); handled {
			return err
		}

		if !reportState(resp.State, resp.Message, resp.LastError) && len(resp.Threats) == 0 {
			return nil
		}
		if len(resp.Threats) == 0 {
			output.Info("No threats correlated")
			return nil
		}

		table := output.NewTable([]string{"Origin", "Pattern", "Score", "Status", "Events", "Severity", "Indicators"})
		for _, t := range resp.Threats {
			table.AddRow([]string{
				t.PrimaryEvent.Origin,
				t.Pattern,
				fmt.Sprintf("%d", t.CorrelationScore),
				t.Status,
				fmt.Sprintf("%d", t.RelatedEventCount),
				t.PrimaryEvent.Severity,
				strings.Join(t.Indicators, ","),
			})
		}
		table.Render()
		if resp.RefreshedAt != nil {
			output.Info("\nRefreshed at %s", resp.RefreshedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List threat patterns",
	Long:  "List the most frequent event types in the current correlation window",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newClient(cmd).ListPatterns()
		if err != nil {
			return fmt.Errorf("failed to list patterns: %w", err)
		}

		if handled, err := output.Structured(outputFormat(cmd), resp); handled {
			return err
		}

		if !reportState(resp.State, resp.Message, "") && len(resp.Patterns) == 0 {
			return nil
		}
		if len(resp.Patterns) == 0 {
			output.Info("No patterns detected")
			return nil
		}

		table := output.NewTable([]string{"Pattern", "Occurrences", "Severity", "Trend"})
		for _, p := range resp.Patterns {
			table.AddRow([]string{p.Name, fmt.Sprintf("%d", p.OccurrenceCount), p.DominantSeverity, p.Trend})
		}
		table.Render()
		return nil
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show correlation and defense summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newClient(cmd).Summary()
		if err != nil {
			return fmt.Errorf("failed to get summary: %w", err)
		}

		if handled, err := output.Structured(outputFormat(cmd), s); handled {
			return err
		}

		reportState(s.CorrelationState, s.CorrelationMessage, "")
		output.Info("Correlations:        %d", s.TotalCorrelations)
		output.Info("  active:            %d", s.ThreatsByStatus["active"])
		output.Info("  investigating:     %d", s.ThreatsByStatus["investigating"])
		output.Info("  mitigated:         %d", s.ThreatsByStatus["mitigated"])
		output.Info("Active patterns:     %d", s.ActivePatternCount)
		output.Info("Average score:       %d", s.AverageCorrelationScore)
		output.Info("Events processed:    %d", s.EventsProcessedCount)
		output.Info("Recent detections:   %d", s.RecentDetectionCount)
		output.Info("")
		output.Info("Simulation running:  %t", s.SimulationRunning)
		output.Info("Live attacks:        %d", s.LiveAttackCount)
		output.Info("Blocked:             %d", s.BlockedCount)
		output.Info("Mitigated:           %d", s.MitigatedCount)
		output.Info("Threat level:        %.0f", s.ThreatLevel)
		output.Info("Active nodes:        %d", s.ActiveNodeCount)
		output.Info("Uptime:              %.2f%%", s.UptimeFraction*100)
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Request a correlation pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		queued, err := newClient(cmd).Refresh()
		if err != nil {
			return fmt.Errorf("failed to request refresh: %w", err)
		}
		if queued {
			output.Success("Correlation refresh queued")
		} else {
			output.Info("A correlation refresh is already pending")
		}
		return nil
	},
}

// reportState prints non-ready correlation states. It returns true when the
// state is ready.
func reportState(state, message, lastError string) bool {
	switch state {
	case "ready":
		return true
	case "stale":
		output.Warn("%s", message)
		if lastError != "" {
			output.Warn("last error: %s", lastError)
		}
	default:
		output.Info("%s", message)
	}
	return false
}

func init() {
	rootCmd.AddCommand(threatsCmd)
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(refreshCmd)

	threatsCmd.Flags().String("status", "", "filter by status: active, investigating, mitigated")
}
