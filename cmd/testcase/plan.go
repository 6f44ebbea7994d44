package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/OFFIS-RIT/testcase-agent/pkg/document"

	"github.com/spf13/cobra"
)

var (
	planPRDPath   string
	planMaxImages int
	planMaxChars  int
	planJSON      bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show how a PRD would be split into sections and batches",
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planPRDPath, "prd", "p", "", "path to the PRD markdown (required)")
	planCmd.Flags().IntVar(&planMaxImages, "max-images", document.DefaultImageCap, "images per batch")
	planCmd.Flags().IntVar(&planMaxChars, "max-chars", document.DefaultCharCap, "characters per batch")
	planCmd.Flags().BoolVar(&planJSON, "json", false, "print the plan as JSON")
	_ = planCmd.MarkFlagRequired("prd")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	text, err := readText(planPRDPath)
	if err != nil {
		return err
	}

	sections := document.Segment(text)
	batches := document.Plan(sections, planMaxImages, planMaxChars)
	if planJSON {
		return printJSON(map[string]any{
			"sections": sections,
			"batches":  batches,
		})
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SECTION\tIMAGES\tCHARS\tSPAN")
	for _, s := range sections {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d-%d\n", s.Title, len(s.Images), s.Chars(), s.Start, s.End)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "BATCH\tSECTIONS\tIMAGES\tCHARS")
	for _, b := range batches {
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\n", b.Index+1, len(b.Sections), b.TotalImages, b.TotalChars)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d sections, %d images, %d batches\n", len(sections), document.CountImages(sections), len(batches))
	return nil
}
