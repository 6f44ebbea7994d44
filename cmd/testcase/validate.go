package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/OFFIS-RIT/testcase-agent/pkg/tabular"

	"github.com/spf13/cobra"
)

var (
	validateRepair  bool
	validateOutPath string
)

var validateCmd = &cobra.Command{
	Use:   "validate <cases.csv>",
	Short: "Check a test case CSV against the schema",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateRepair, "repair", false, "write a repaired CSV when the input is invalid")
	validateCmd.Flags().StringVarP(&validateOutPath, "out", "o", "", "repaired CSV path (default stdout)")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	text, err := readText(args[0])
	if err != nil {
		return err
	}

	verr := tabular.Validate(text)
	if verr == nil {
		fmt.Fprintln(os.Stderr, "valid")
		return nil
	}
	fmt.Fprintf(os.Stderr, "invalid: %v\n", verr)
	if !validateRepair {
		return errors.New("validation failed")
	}

	repaired := tabular.Repair(text)
	if err := tabular.Validate(repaired); err != nil {
		return fmt.Errorf("repair failed: %w", err)
	}
	fmt.Fprintln(os.Stderr, "repaired")
	return writeOutput(validateOutPath, repaired)
}
