package cli

import (
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/mfp-dev/mfp/internal/compiler"
	"github.com/mfp-dev/mfp/internal/config"
	"github.com/mfp-dev/mfp/internal/errs"
	"github.com/mfp-dev/mfp/internal/lint"
	"github.com/mfp-dev/mfp/internal/logging"
	"github.com/mfp-dev/mfp/internal/policy"
)

func newCompileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile configured swagger sources into callable Python libraries",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				return err
			}
			dryRun, err := cmd.Flags().GetBool("dry-run")
			if err != nil {
				return err
			}
			llmEnhance, err := cmd.Flags().GetBool("llm-enhance")
			if err != nil {
				return err
			}
			return runCompile(cmd, configPath, verbose, dryRun, llmEnhance)
		},
	}
	cmd.Flags().Bool("dry-run", false, "Parse sources only, without generating or writing any files")
	cmd.Flags().Bool("llm-enhance", false, "Pass generated code through the configured Enhancer before writing")
	return cmd
}

func runCompile(cmd *cobra.Command, configPath string, verbose, dryRun, llmEnhance bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := config.ApplyEnvOverrides(&cfg); err != nil {
		return err
	}
	if verbose {
		cfg.Verbose = true
	}

	log, err := logging.New(cfg.Verbose)
	if err != nil {
		return errs.Wrap(errs.InternalError, err, "cli: build logger: %v", err)
	}
	defer log.Sync()

	for _, src := range cfg.Sources {
		if err := policy.CheckDomainAllowed(src.BaseURL, cfg.DomainAllowlist); err != nil {
			return err
		}
	}

	results := compiler.Compile(cmd.Context(), cfg.Sources, compiler.Options{
		CompiledDir: cfg.CompiledDir,
		DryRun:      dryRun,
		LLMEnhance:  llmEnhance,
		Lint:        resolveLintRunner(),
	})

	var failed []compiler.SourceResult
	for _, r := range results {
		switch {
		case r.Error != nil:
			failed = append(failed, r)
			fmt.Fprintf(cmd.OutOrStdout(), "compile %s: FAILED: %v\n", r.ServerName, r.Error)
		case r.Skipped:
			fmt.Fprintf(cmd.OutOrStdout(), "compile %s: skipped (unchanged)\n", r.ServerName)
		case dryRun:
			fmt.Fprintf(cmd.OutOrStdout(), "compile %s: dry-run ok\n", r.ServerName)
		default:
			fmt.Fprintf(cmd.OutOrStdout(), "compile %s: written\n", r.ServerName)
		}
	}
	if len(failed) > 0 {
		return newCompileFailureError(len(failed), len(results))
	}
	return nil
}

// resolveLintRunner uses ruff when it's on PATH and falls back to a no-op
// otherwise, so compiling doesn't hard-depend on an operator having
// installed a Python linter.
func resolveLintRunner() lint.Runner {
	if _, err := exec.LookPath("ruff"); err != nil {
		return lint.NopRunner{}
	}
	return lint.NewProcessRunner("")
}

type compileFailureError struct {
	failed, total int
}

func newCompileFailureError(failed, total int) error {
	return &compileFailureError{failed: failed, total: total}
}

func (e *compileFailureError) Error() string {
	return fmt.Sprintf("cli: %d of %d sources failed to compile", e.failed, e.total)
}
