package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/llm-council/internal/catalog"
	"github.com/hugo-lorenzo-mato/llm-council/internal/service/council"
)

var modelsCmd = &cobra.Command{
	Use:   "models [filter]",
	Short: "List the recommended models",
	Long: `List the recommended models and the role each one suits.

A filter fuzzy-matches model and display names, best match first.
With --check the local Ollama is asked which of them are installed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runModels,
}

var (
	modelsCheck bool
	modelsJSON  bool
)

func init() {
	rootCmd.AddCommand(modelsCmd)

	modelsCmd.Flags().BoolVar(&modelsCheck, "check", false, "mark which models are installed")
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "print as JSON")
}

func runModels(cmd *cobra.Command, args []string) error {
	var installed []string
	if modelsCheck {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		models, err := council.NewLocalGateway(cfg).ListModels(ctx)
		if err != nil {
			return fmt.Errorf("listing installed models: %w", err)
		}
		for _, m := range models {
			installed = append(installed, m.Name)
		}
	}

	models := catalog.Recommended()
	if len(args) == 1 {
		models = filterModels(models, args[0])
	}
	entries := catalog.Annotate(models, installed)
	out := cmd.OutOrStdout()
	if modelsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	headers := []string{"Model", "Name", "Size", "Role"}
	if modelsCheck {
		headers = append(headers, "Installed")
	}
	t := newTable(!noColor).Headers(headers...)
	for _, e := range entries {
		row := []string{e.Name, e.DisplayName, e.Size, string(e.Role)}
		if modelsCheck {
			mark := "no"
			if e.Installed {
				mark = "yes"
			}
			row = append(row, mark)
		}
		t.Row(row...)
	}
	fmt.Fprintln(out, t.Render())
	return nil
}

// modelSource exposes "name display_name" strings to the fuzzy matcher.
type modelSource []catalog.Model

func (m modelSource) String(i int) string { return m[i].Name + " " + m[i].DisplayName }
func (m modelSource) Len() int            { return len(m) }

// filterModels returns the models matching pattern, best match first.
func filterModels(models []catalog.Model, pattern string) []catalog.Model {
	matches := fuzzy.FindFrom(pattern, modelSource(models))
	out := make([]catalog.Model, 0, len(matches))
	for _, m := range matches {
		out = append(out, models[m.Index])
	}
	return out
}
