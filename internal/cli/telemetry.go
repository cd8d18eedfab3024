package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	app "github.com/skycast-io/skycast/internal"
	"github.com/skycast-io/skycast/internal/telemetry"
)

var telemetryCheck bool

var (
	telemetryLabelStyle = lipgloss.NewStyle().Bold(true).Width(10)
	telemetryOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	telemetryErrStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

var telemetryCmd = &cobra.Command{
	Use:   "telemetry",
	Short: "Show the effective analytics configuration",
	Long: `Show the resolved analytics settings (enabled flag, privacy level, and
collection endpoint) after config-file, environment, and fallback rules
have been applied.

With --check, also send one empty event batch to verify the endpoint is
reachable.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		cfg, err := telemetry.LoadConfig(app.ResolveBasePath(), appVersion, logger)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		fmt.Println(telemetryLabelStyle.Render("enabled") + fmt.Sprintf("%t", cfg.Enabled))
		fmt.Println(telemetryLabelStyle.Render("level") + string(cfg.Level))
		fmt.Println(telemetryLabelStyle.Render("endpoint") + cfg.Endpoint)
		fmt.Println(telemetryLabelStyle.Render("salt") + fmt.Sprintf("%t", cfg.Salt != ""))

		if !telemetryCheck {
			return nil
		}

		sender := telemetry.NewHTTPSender(cfg.Endpoint, cfg.Version, nil)
		if err := sender.SendBatch(cmd.Context(), nil); err != nil {
			fmt.Println(telemetryLabelStyle.Render("check") + telemetryErrStyle.Render(fmt.Sprintf("unreachable: %s", err)))
			return nil
		}
		fmt.Println(telemetryLabelStyle.Render("check") + telemetryOKStyle.Render("endpoint reachable"))
		return nil
	},
}

func init() {
	telemetryCmd.Flags().BoolVar(&telemetryCheck, "check", false, "send one empty batch to verify the endpoint")
	rootCmd.AddCommand(telemetryCmd)
}
