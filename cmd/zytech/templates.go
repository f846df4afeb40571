package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"zytech/internal/bot"
	"zytech/internal/config"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Herramientas para los templates de bots",
}

var templatesValidateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Valida todos los templates YAML de dir (default TEMPLATES_DIR)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := ""
		if len(args) == 1 {
			dir = args[0]
		} else {
			config.LoadEnvFiles()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			dir = cfg.TemplatesDir
		}
		return validateTemplates(cmd, dir)
	},
}

func init() {
	templatesCmd.AddCommand(templatesValidateCmd)
}

func validateTemplates(cmd *cobra.Command, dir string) error {
	loaded, err := bot.LoadDir(dir)

	names := make([]string, 0, len(loaded))
	for name := range loaded {
		names = append(names, name)
	}
	sort.Strings(names)

	out := cmd.OutOrStdout()
	for _, name := range names {
		t := loaded[name]
		fmt.Fprintf(out, "✅ %s (%s, %s)\n", name, t.Kind, t.Vertical)
	}
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "❌ %v\n", err)
		return fmt.Errorf("hay templates inválidos en %s", dir)
	}
	return nil
}
