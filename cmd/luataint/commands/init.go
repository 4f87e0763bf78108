package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/l3aro/luataint/internal/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a luataint configuration file interactively",
	Long: `Guides you through the scan settings and writes them to
.luataint/config.yaml in the current directory, or to ~/.luataint/config.yaml
with --global.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		global, _ := cmd.Flags().GetBool("global")
		return runInit(global)
	},
}

func runInit(global bool) error {
	cfg := config.DefaultConfig()
	if settings != nil {
		*cfg = *settings
	}

	maxPaths := strconv.Itoa(cfg.MaxPaths)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Entry points").
				Description("Which functions receive untrusted parameters").
				Options(
					huh.NewOption("LuCI routes (call/post/form targets)", "luci"),
					huh.NewOption("Public functions (no leading underscore)", "public"),
					huh.NewOption("All functions", "all"),
					huh.NewOption("None, module bodies only", "none"),
				).
				Value(&cfg.Framework),
			huh.NewConfirm().
				Title("Resolve requires relative to the importing file?").
				Value(&cfg.AllowLocalImports),
			huh.NewConfirm().
				Title("Scan subdirectories?").
				Value(&cfg.Recursive),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Trigger file (optional, press Enter for the built-in triggers)").
				Placeholder("triggers.yaml").
				Value(&cfg.TriggerFile),
			huh.NewInput().
				Title("Blackbox mapping file (optional)").
				Placeholder("blackbox_mapping.yaml").
				Value(&cfg.BlackboxMappingFile),
			huh.NewInput().
				Title("Maximum paths per source and sink").
				Value(&maxPaths).
				Validate(func(s string) error {
					if n, err := strconv.Atoi(s); err != nil || n <= 0 {
						return fmt.Errorf("enter a positive number")
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Report format").
				Options(
					huh.NewOption("Text", "text"),
					huh.NewOption("JSON", "json"),
					huh.NewOption("MessagePack", "msgpack"),
				).
				Value(&cfg.Format),
			huh.NewConfirm().
				Title("Report only unsanitized findings?").
				Value(&cfg.OnlyUnsanitized),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	cfg.MaxPaths, _ = strconv.Atoi(maxPaths)

	if err := cfg.Validate(); err != nil {
		return err
	}

	path := config.ProjectConfigFilePath()
	if global {
		home, err := homedir.Dir()
		if err != nil {
			return fmt.Errorf("locating home directory: %w", err)
		}
		path = filepath.Join(home, ".luataint", "config.yaml")
	}

	if _, err := os.Stat(path); err == nil {
		overwrite := false
		confirm := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("%s exists. Overwrite?", path)).
					Value(&overwrite),
			),
		)
		if err := confirm.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Println("Configuration left unchanged.")
			return nil
		}
	}

	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Printf("Configuration written to %s\n", path)
	return nil
}

func init() {
	initCmd.Flags().Bool("global", false, "Write the global config in the home directory")
}
