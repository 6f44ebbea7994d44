package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/OFFIS-RIT/testcase-agent/internal/util"
	"github.com/OFFIS-RIT/testcase-agent/pkg/logger"
	"github.com/OFFIS-RIT/testcase-agent/pkg/logger/console"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "testcase",
	Short: "Generate test case CSVs from product requirement documents",
	Long: `testcase turns a markdown PRD into an 8 column test case CSV using a
chat model. Documents with images are split into batches for a vision model;
an older version of the document switches to incremental generation.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		util.LoadEnv()
		logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
			Debug:  verbose || util.GetEnvBool("DEBUG", false),
			Output: os.Stderr,
		}))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func writeOutput(path, text string) error {
	if path == "" || path == "-" {
		_, err := fmt.Fprintln(os.Stdout, text)
		return err
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
