package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	app "github.com/skycast-io/skycast/internal"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	Long: `Start the Skycast MCP server on standard input/output.

The server runs until the client disconnects or the process receives
SIGINT/SIGTERM. On exit the analytics collector performs one best-effort
final flush before the process terminates.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(app.ResolveBasePath(), appVersion)
		if err != nil {
			return fmt.Errorf("initializing skycast: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		defer a.Collector.Shutdown()

		if err := a.Server.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("running MCP server: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
