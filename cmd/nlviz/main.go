// Command nlviz serves natural-language visualizations over one tabular
// dataset: a prompt is turned into a plan by a language model, the plan is
// executed against the table and the chart payload is returned as JSON.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mTatsuro/llm-data-visualizer/internal/config"
)

// app carries flags and output streams shared by all commands.
type app struct {
	configPath string
	verbose    bool
	stdout     io.Writer
	stderr     io.Writer
	// newLogger is replaced in tests.
	newLogger func(verbose bool) (*zap.Logger, error)
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr, newLogger: newLogger}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nlviz",
		Short: "Natural-language charts over a tabular dataset",
		Long: `nlviz loads one CSV or JSON dataset and turns prompts such as
"show a pie chart of companies by industry" into chart payloads.

Examples:
  # Serve the HTTP API
  nlviz serve -c nlviz.yaml

  # Print the schema sent to the model
  nlviz schema -c nlviz.yaml

  # Execute a saved plan without calling the model
  nlviz exec -c nlviz.yaml --plan plan.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to YAML config (defaults apply when empty)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "development logging at debug level")

	root.AddCommand(a.serveCmd(), a.schemaCmd(), a.execCmd(), a.validateCmd())
	return root
}

// load reads the config and a logger for it.
func (a *app) load() (config.Service, *zap.Logger, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return cfg, nil, err
	}
	log, err := a.newLogger(a.verbose)
	if err != nil {
		return cfg, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, log, nil
}

func main() {
	a := newApp(os.Stdout, os.Stderr)
	if err := a.rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "nlviz: %v\n", err)
		os.Exit(1)
	}
}
