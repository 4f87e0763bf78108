// Package commands provides the CLI commands for luataint.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/l3aro/luataint/internal/config"
	"github.com/l3aro/luataint/internal/log"
)

var (
	// cfgFile overrides the global and project config lookup.
	cfgFile   string
	verbosity int
	logFile   string
	logJSON   bool

	// Set by the root PersistentPreRunE for every subcommand.
	settings *config.Config
	logger   *log.DefaultLogger
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "luataint",
	Short: "luataint - static taint analysis for Lua",
	Long: `luataint finds flows of user input into dangerous calls in Lua code.

Commands:
  scan        Scan files or directories for vulnerabilities
  cfg         Print the control flow graph of a file
  init        Write a configuration file interactively

Use "luataint [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("verbose") {
			c.Verbosity = verbosity
		}
		if logFile != "" {
			c.LogFile = logFile
		}
		if logJSON {
			c.LogJSON = true
		}
		settings = c
		logger = log.New(log.LoggerConfig{
			Level:      log.FromVerbosity(c.Verbosity),
			JSONOutput: c.LogJSON,
			File:       c.LogFile,
			MaxSizeMB:  c.LogMaxSize,
		})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFromFile(cfgFile)
	}
	return config.Load()
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file path (default: .luataint/config.yaml, then ~/.luataint/config.yaml)")
	RootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase logging verbosity (-v warn, -vv info, -vvv debug)")
	RootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this rotated file")
	RootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Log JSON to stderr")

	RootCmd.AddCommand(scanCmd)
	RootCmd.AddCommand(cfgCmd)
	RootCmd.AddCommand(initCmd)
}
