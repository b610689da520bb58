package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/templc/internal/config"
	"github.com/conneroisu/templc/internal/source"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Create a starter project",
	Long: `Write a .templc.yml with the default settings and a components
directory holding an _Imports.tmpl and two example components.

Examples:
  templc init
  templc init my-site`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing files")
}

// starterComponents are written below components/.
var starterComponents = map[string]string{
	source.ImportsFileName: `@import "templc/ui"
`,
	"Page.tmpl": `@page "/"
<main>
<Greeting Name="world" />
<ui.Badge Label="new" Count="1" />
</main>
`,
	"Greeting.tmpl": `@param Name string
<h1>Hello @Name</h1>
`,
}

func runInit(cmd *cobra.Command, args []string) error {
	projectDir := "."
	if len(args) == 1 {
		projectDir = args[0]
	}

	componentsDir := filepath.Join(projectDir, "components")
	if err := os.MkdirAll(componentsDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", componentsDir, err)
	}

	cfg := config.Defaults()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := writeStarterFile(filepath.Join(projectDir, ".templc.yml"), data); err != nil {
		return err
	}
	for name, text := range starterComponents {
		if err := writeStarterFile(filepath.Join(componentsDir, name), []byte(text)); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created project in %s\nNext: templc compile %s --out app.mod\n",
		projectDir, componentsDir)
	return nil
}

func writeStarterFile(path string, data []byte) error {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	return os.WriteFile(path, data, 0o644)
}
