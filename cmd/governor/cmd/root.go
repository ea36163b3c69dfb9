// Package cmd implements the governor CLI's cobra command tree,
// grounded on the teacher pack's cmd/template-validator/cmd layout
// (a root command holding persistent flags plus a viper overlay for
// env/file defaults).
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// configPaths is read directly (see run.go) rather than through viper,
// since repeated-flag-to-string-slice binding is inconsistent across
// pflag value types. Every other flag below is read via viper.Get*,
// which also layers in GOVERNOR_* env var overrides.
var configPaths []string

// rootCmd is the governor process entry point: load every --config file,
// start one engine per governor, and serve the bus/HTTP surface — unless
// --check-config is set, in which case it only validates and exits.
var rootCmd = &cobra.Command{
	Use:   "governor",
	Short: "Run the device-state-machine governor supervisor",
	Long: `governor drives a declared set of devices through named states via
engineered transitions. Multiple governor configs may be supplied; the
first one registered starts active, the rest start disabled.

Examples:
  # Run with a single config
  governor --config plant.yaml

  # Run multiple governors sharing a synchronized position file
  governor --config plant-a.yaml --config plant-b.yaml --sync positions.yaml

  # Validate configuration without starting anything
  governor --config plant.yaml --check-config

Exit Codes:
  0: success
  1: invalid configuration (including with --check-config)
`,
	RunE: run,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.Flags()
	flags.StringArrayVar(&configPaths, "config", nil, "governor config file (repeatable)")
	flags.String("sync", "", "optional sync file mapping device positions kept equal across governors")
	flags.Bool("check-config", false, "validate every --config file and exit without starting")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text or json")
	flags.String("log-file", "", "rotating log file path; empty logs to stdout")
	flags.String("prefix", "Gov", "bus channel name prefix")
	flags.String("http-addr", ":8080", "address for the /healthz, /metrics, /status, /ws HTTP surface")

	viper.SetEnvPrefix("governor")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	bindEnv("config")
	bindEnv("sync")
	bindEnv("check-config")
	bindEnv("log-level")
	bindEnv("log-format")
	bindEnv("log-file")
	bindEnv("prefix")
	bindEnv("http-addr")
	viper.BindPFlags(flags)
}

func bindEnv(flag string) {
	if err := viper.BindEnv(flag); err != nil {
		panic(fmt.Sprintf("cmd: bind env for %s: %v", flag, err))
	}
}
