package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/OFFIS-RIT/testcase-agent/internal/setup"
	"github.com/OFFIS-RIT/testcase-agent/internal/util"
	"github.com/OFFIS-RIT/testcase-agent/pkg/generate"
	"github.com/OFFIS-RIT/testcase-agent/pkg/jobs"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	generatePRDPath    string
	generateOldPath    string
	generateOutPath    string
	generateConfigPath string
	generatePrintMeta   bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate test cases for a PRD",
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&generatePRDPath, "prd", "p", "", "path to the PRD markdown (required)")
	generateCmd.Flags().StringVar(&generateOldPath, "old", "", "path to the previous PRD version for incremental generation")
	generateCmd.Flags().StringVarP(&generateOutPath, "out", "o", "", "output CSV path (default stdout)")
	generateCmd.Flags().StringVarP(&generateConfigPath, "config", "c", "", "JSON file with per-request config overrides")
	generateCmd.Flags().BoolVar(&generatePrintMeta, "meta", false, "print the run metadata after the CSV is written")
	_ = generateCmd.MarkFlagRequired("prd")
	rootCmd.AddCommand(generateCmd)
}

func loadConfig(path string) (generate.Config, error) {
	var cfg generate.Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	req := generate.Request{}
	var err error
	if req.NewPRD, err = readText(generatePRDPath); err != nil {
		return err
	}
	if generateOldPath != "" {
		if req.OldPRD, err = readText(generateOldPath); err != nil {
			return err
		}
	}
	if req.Config, err = loadConfig(generateConfigPath); err != nil {
		return err
	}

	deps, err := setup.Build(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	if _, err := deps.Generator.Prepare(req.Config); err != nil {
		return err
	}

	job, err := deps.Jobs.Submit(ctx, jobs.TypeGenerate, req)
	if err != nil {
		return err
	}
	done, err := follow(ctx, deps.Jobs, job.ID)
	if err != nil {
		return err
	}
	if done.Status == jobs.StatusError {
		return fmt.Errorf("generation failed: %s", done.Error)
	}

	if err := writeOutput(generateOutPath, done.Result); err != nil {
		return err
	}
	if generatePrintMeta {
		var meta generate.Meta
		_ = json.Unmarshal(done.Meta, &meta)
		return printJSON(meta)
	}
	return nil
}

// follow polls the job and renders its progress until it finishes.
func follow(ctx context.Context, m *jobs.Manager, id string) (*jobs.Job, error) {
	bar := progressbar.NewOptions64(
		1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("waiting"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
	)
	start := time.Now()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		job, err := m.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Progress.Total > 0 {
			bar.ChangeMax64(int64(job.Progress.Total))
			_ = bar.Set64(int64(job.Progress.Current))
		}
		bar.Describe(describe(job, time.Since(start)))
		if job.Status.Terminal() {
			_ = bar.Finish()
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func describe(job *jobs.Job, elapsed time.Duration) string {
	switch {
	case job.Status == jobs.StatusPending:
		return "queued"
	case job.Status.Terminal():
		return fmt.Sprintf("%s in %s", job.Status, util.FormatDuration(elapsed))
	case job.ETASeconds != nil:
		return fmt.Sprintf("batches, eta %s", util.FormatDuration(time.Duration(*job.ETASeconds)*time.Second))
	default:
		return "batches"
	}
}
