package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/l3aro/luataint/internal/config"
	"github.com/l3aro/luataint/internal/log"
	"github.com/l3aro/luataint/pkg/report"
	"github.com/l3aro/luataint/pkg/scan"
	"github.com/l3aro/luataint/pkg/vulns"
)

// ErrVulnerable is returned by scan --exit-code when an unsanitized finding
// remains.
var ErrVulnerable = errors.New("unsanitized vulnerabilities found")

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan [path...]",
	Short: "Scan files or directories for vulnerabilities",
	Long: `Lowers every Lua file into a control flow graph, solves reaching definitions
and reports flows from sources to sinks that no sanitizer interrupts.

Configuration file values are overridden by the flags below.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			args = []string{"."}
		}
		if err := applyScanFlags(cmd, settings); err != nil {
			return err
		}
		if err := settings.Validate(); err != nil {
			return err
		}
		format, err := report.ParseFormat(settings.Format)
		if err != nil {
			return err
		}

		var prompter vulns.Prompter
		if settings.Interactive {
			prompter = formPrompter{}
		}

		opts := scan.Options{Config: settings, Logger: logger, Prompter: prompter}
		found, err := scan.RunAll(cmd.Context(), args, opts)
		if err != nil {
			return fmt.Errorf("scanning %s: %w", strings.Join(args, ", "), err)
		}
		if found.Suppressed > 0 {
			logger.Info("baseline suppressed findings", "count", found.Suppressed)
		}

		doc := found.Report(settings)
		if err := writeReport(doc, format); err != nil {
			return err
		}

		exitCode, _ := cmd.Flags().GetBool("exit-code")
		if exitCode && doc.HasVulnerable() {
			return ErrVulnerable
		}
		return nil
	},
}

func writeReport(doc *report.Document, format report.Format) error {
	var w io.Writer = os.Stdout
	color := format == report.FormatText && log.IsTerminal(os.Stdout)
	if settings.OutputFile != "" {
		f, err := os.Create(settings.OutputFile)
		if err != nil {
			return fmt.Errorf("creating report file: %w", err)
		}
		defer f.Close()
		w = f
		color = false
	}
	return report.Write(w, doc, format, report.Options{Color: color})
}

// applyScanFlags copies explicitly set flags over the loaded configuration.
func applyScanFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	var err error
	str := func(name string, dst *string) {
		if err == nil && flags.Changed(name) {
			*dst, err = flags.GetString(name)
		}
	}
	boolean := func(name string, dst *bool) {
		if err == nil && flags.Changed(name) {
			*dst, err = flags.GetBool(name)
		}
	}
	integer := func(name string, dst *int) {
		if err == nil && flags.Changed(name) {
			*dst, err = flags.GetInt(name)
		}
	}

	str("project-root", &c.ProjectRoot)
	boolean("recursive", &c.Recursive)
	boolean("allow-local-imports", &c.AllowLocalImports)
	str("framework", &c.Framework)
	str("trigger-file", &c.TriggerFile)
	str("blackbox-mapping-file", &c.BlackboxMappingFile)
	str("baseline", &c.Baseline)
	boolean("ignore-nosec", &c.IgnoreNosec)
	boolean("interactive", &c.Interactive)
	integer("max-paths", &c.MaxPaths)
	str("format", &c.Format)
	str("output", &c.OutputFile)
	boolean("only-unsanitized", &c.OnlyUnsanitized)
	if err == nil && flags.Changed("exclude") {
		c.ExcludedPaths, err = flags.GetStringSlice("exclude")
	}
	return err
}

func init() {
	f := scanCmd.Flags()
	f.String("project-root", "", "Directory modules are resolved from (default: the scanned directory)")
	f.BoolP("recursive", "r", true, "Descend into subdirectories")
	f.StringSliceP("exclude", "x", nil, "Comma separated paths or patterns to skip")
	f.Bool("allow-local-imports", false, "Resolve requires against the importing file's directory")
	f.String("framework", "luci", "Entry point criteria: luci, all, public or none")
	f.StringP("trigger-file", "t", "", "YAML file with sources, sinks and sanitizers per category")
	f.StringP("blackbox-mapping-file", "m", "", "YAML or JSON file of known blackbox calls")
	f.StringP("baseline", "b", "", "Previous JSON or msgpack report whose findings are suppressed")
	f.Bool("ignore-nosec", false, "Report findings on lines marked nosec")
	f.BoolP("interactive", "i", false, "Ask whether unknown blackbox calls propagate taint")
	f.Int("max-paths", 1000, "Maximum def-use paths explored per source and sink")
	f.StringP("format", "f", "text", "Report format: text, json or msgpack")
	f.StringP("output", "o", "", "Write the report to a file instead of stdout")
	f.Bool("only-unsanitized", false, "Leave sanitized findings out of the report")
	f.Bool("exit-code", false, "Exit non-zero when an unsanitized finding remains")
}
