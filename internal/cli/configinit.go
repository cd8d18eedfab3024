package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	app "github.com/skycast-io/skycast/internal"
	"github.com/skycast-io/skycast/internal/telemetry"
)

const configFileName = ".skycast.yaml"

const configHeader = `# Skycast configuration.
#
# analytics.level controls how much operational detail anonymous usage
# events carry: minimal, standard, or detailed. No level ever includes
# coordinates, place names, or user input.
`

// configFile is the on-disk shape of .skycast.yaml.
type configFile struct {
	Analytics telemetry.Config `yaml:"analytics"`
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Skycast configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default .skycast.yaml to the current directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeDefaultConfig(app.ResolveBasePath())
	},
}

func writeDefaultConfig(basePath string) error {
	path := filepath.Join(basePath, configFileName)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	data, err := yaml.Marshal(configFile{Analytics: telemetry.DefaultConfig("")})
	if err != nil {
		return fmt.Errorf("marshaling default config: %w", err)
	}

	if err := os.WriteFile(path, append([]byte(configHeader), data...), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", configFileName, err)
	}

	fmt.Printf("Wrote %s\n", path)
	return nil
}

func init() {
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
