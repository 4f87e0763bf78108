package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/l3aro/luataint/internal/scanner"
	"github.com/l3aro/luataint/pkg/cfg"
	"github.com/l3aro/luataint/pkg/parser"
)

// cfgCmd represents the cfg command
var cfgCmd = &cobra.Command{
	Use:   "cfg <file>",
	Short: "Print the control flow graph of a Lua file",
	Long: `Lowers a Lua file, with every project module it requires spliced in, and
prints the resulting control flow graph. With --function the graph of a single
function is printed, starting from its parameters.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filePath := args[0]

		info, err := os.Stat(filePath)
		if err != nil {
			return fmt.Errorf("stat file: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("path is a directory, expected a file: %s", filePath)
		}
		if !scanner.IsLua(filePath) {
			return fmt.Errorf("unsupported file type: %s (only .lua files supported)", filePath)
		}

		abs, err := filepath.Abs(filePath)
		if err != nil {
			return err
		}
		root := settings.ProjectRoot
		if root == "" {
			root = filepath.Dir(abs)
		}
		allowLocal, _ := cmd.Flags().GetBool("allow-local-imports")

		trees := parser.New(parser.Options{MaxTrees: settings.MaxTrees})
		project, err := cfg.NewProject(root, cfg.Options{
			AllowLocalImports: allowLocal || settings.AllowLocalImports,
			Trees:             trees,
			Logger:            logger,
		})
		if err != nil {
			return err
		}

		chunk, err := trees.ParseFile(abs)
		if err != nil {
			return err
		}
		g, err := project.Build(abs, chunk)
		if err != nil {
			return fmt.Errorf("building CFG: %w", err)
		}

		if name, _ := cmd.Flags().GetString("function"); name != "" {
			def := g.Definitions.Lookup(name)
			if def == nil || def.Body == nil {
				return fmt.Errorf("function %q not found in %s", name, filePath)
			}
			if g, err = project.BuildFunction(def, chunk); err != nil {
				return fmt.Errorf("building CFG for %s: %w", name, err)
			}
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(g, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}
		printCFG(g)
		return nil
	},
}

// printCFG prints the graph in human-readable format.
func printCFG(g *cfg.CFG) {
	fmt.Printf("=== CFG for %s (%s) ===\n", g.Name, g.Path)
	fmt.Printf("Nodes (%d):\n", g.Len())
	for _, n := range g.Nodes {
		fmt.Printf("  %3d %-15s line %-4d %s\n", n.ID, n.Kind, n.Line, n.Label)
		if len(n.Outgoing) > 0 {
			out := make([]string, len(n.Outgoing))
			for i, id := range n.Outgoing {
				out[i] = fmt.Sprint(id)
			}
			fmt.Printf("      -> %s\n", strings.Join(out, ", "))
		}
	}
}

func init() {
	cfgCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	cfgCmd.Flags().String("function", "", "Print the graph of this function instead of the module")
	cfgCmd.Flags().Bool("allow-local-imports", false, "Resolve requires against the file's directory")
}
