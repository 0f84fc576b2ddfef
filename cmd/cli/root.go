// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Mufeed Ali

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"profmerge/internal/config"
	"profmerge/internal/discovery"
	"profmerge/internal/logger"
	"profmerge/internal/profdata"
)

var (
	statusColor     = color.New(color.FgCyan)
	errorColor      = color.New(color.FgRed)
	warnColor       = color.New(color.FgYellow)
	successColor    = color.New(color.FgGreen)
	identifierColor = color.New(color.FgBlue)
)

// errUsage marks invalid input detected before any merge attempt.
var errUsage = errors.New("usage error")

// mergeFlags holds the parsed command line of the root command.
type mergeFlags struct {
	inputDir     string
	outputFile   string
	llvmProfdata string
	pattern      string

	configPath  string
	sparse      bool
	timeout     time.Duration
	validate    bool
	concurrency int
	verbose     bool
}

// app carries what a single invocation needs; the merger is injectable so
// the driver can be exercised without llvm-profdata.
type app struct {
	stdout io.Writer
	stderr io.Writer
	merger profdata.Merger
	status int

	// parsed is set once flags and arguments passed cobra's validation.
	parsed bool
}

func newRootCmd(a *app) *cobra.Command {
	flags := &mergeFlags{}

	cmd := &cobra.Command{
		Use:   "profmerge --input-dir DIR --output-file FILE --llvm-profdata PATH",
		Short: "Merge .profdata files from multiple test steps into one profile",
		Long: `Merge profdata files in <--input-dir> into a single profdata.

Every file below --input-dir whose name ends in .profdata and matches
--profdata-filename-pattern (searched anywhere in the file name) is
merged with 'llvm-profdata merge' into --output-file.

Tuning defaults are read from ~/.config/profmerge/config.yaml or --config.`,
		Example: `  profmerge --input-dir /tmp/in --output-file /tmp/out.profdata --llvm-profdata /usr/bin/llvm-profdata
  profmerge --input-dir out/steps --output-file out/unit.profdata \
      --llvm-profdata third_party/llvm-build/bin/llvm-profdata \
      --profdata-filename-pattern 'unit.*'`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.parsed = true
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runMerge(cmd, flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.inputDir, "input-dir", "", "directory containing the profdata files to merge")
	f.StringVar(&flags.outputFile, "output-file", "", "where to store the merged data")
	f.StringVar(&flags.llvmProfdata, "llvm-profdata", "", "path to llvm-profdata executable")
	f.StringVar(&flags.pattern, "profdata-filename-pattern", discovery.MatchAll,
		"regex pattern of profdata filename to merge for current test type. If not present, all profdata files will be merged.")
	_ = cmd.MarkFlagRequired("input-dir")
	_ = cmd.MarkFlagRequired("output-file")
	_ = cmd.MarkFlagRequired("llvm-profdata")

	f.BoolVar(&flags.sparse, "sparse", true, "pass -sparse=true to llvm-profdata merge")
	f.DurationVar(&flags.timeout, "timeout", config.DefaultTimeout, "timeout for each llvm-profdata invocation")
	f.BoolVar(&flags.validate, "validate", false, "check every fragment with 'llvm-profdata show' before merging")
	f.IntVar(&flags.concurrency, "concurrency", config.DefaultConcurrency, "number of fragments validated in parallel")

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to the configuration file")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newConfigCmd(a, flags))
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)
	return cmd
}

// loadConfig reads the config file and applies flags the user set explicitly.
func loadConfig(cmd *cobra.Command, flags *mergeFlags) (config.Config, error) {
	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return config.Config{}, err
	}

	f := cmd.Flags()
	if f.Changed("sparse") {
		cfg.Sparse = flags.sparse
	}
	if f.Changed("timeout") {
		cfg.Timeout = flags.timeout
	}
	if f.Changed("validate") {
		cfg.Validate = flags.validate
	}
	if f.Changed("concurrency") {
		cfg.Concurrency = flags.concurrency
	}
	if flags.verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func (a *app) runMerge(cmd *cobra.Command, flags *mergeFlags) error {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	logger.InitLogger(a.stderr, logger.ParseLevel(cfg.LogLevel), cfg.LogToFile)

	if _, err := discovery.CompilePattern(flags.pattern); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	merger := a.merger
	s := newSpinner(a.stderr)
	if merger == nil {
		m := profdata.NewLLVMMerger()
		if flags.verbose {
			m.Stdout = a.stderr
			m.Stderr = a.stderr
		}
		if s != nil {
			m.Progress = func(phase string) {
				s.Lock()
				s.Suffix = " " + phase + "..."
				s.Unlock()
			}
		}
		merger = m
	}

	req := profdata.Request{
		InputDir:   flags.inputDir,
		OutputFile: flags.outputFile,
		Extension:  profdata.FragmentExtension,
		ToolPath:   flags.llvmProfdata,
		Pattern:    flags.pattern,
		Options:    profdata.OptionsFromConfig(cfg),
	}

	statusColor.Fprintf(a.stdout, "Merging profdata files in %s\n", identifierColor.Sprint(req.InputDir))
	logger.Debug("Starting merge",
		"input_dir", req.InputDir,
		"output_file", req.OutputFile,
		"llvm_profdata", req.ToolPath,
		"pattern", req.Pattern,
		"sparse", req.Options.Sparse,
		"validate", req.Options.Validate)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if s != nil {
		s.Start()
	}
	result, err := merger.Merge(ctx, req)
	if s != nil {
		s.Stop()
	}

	for _, invalid := range result.Invalid {
		warnColor.Fprintf(a.stderr, "Skipped invalid profile: %s\n", invalid)
	}

	a.status = profdata.ExitStatus(err)
	if err != nil {
		logger.Error("Merge failed", "input_dir", req.InputDir, "exit_status", a.status, "error", err)
		return err
	}

	successColor.Fprintf(a.stdout, "Merged %d profdata files into %s\n", len(result.Merged), identifierColor.Sprint(req.OutputFile))
	return nil
}

// newSpinner returns a progress spinner drawing on w, or nil when w is not a
// file. The spinner only animates when that file is a terminal.
func newSpinner(w io.Writer) *spinner.Spinner {
	f, ok := w.(*os.File)
	if !ok {
		return nil
	}
	return spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriterFile(f))
}

// Execute runs the command line in args and returns the process exit status.
// A nil merger selects llvm-profdata.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer, merger profdata.Merger) int {
	a := &app{stdout: stdout, stderr: stderr, merger: merger}
	cmd := newRootCmd(a)
	if args == nil {
		// cobra falls back to os.Args for a nil slice
		args = []string{}
	}
	cmd.SetArgs(args)

	failed, err := cmd.ExecuteContextC(ctx)
	if err == nil {
		return a.status
	}

	errorColor.Fprintf(stderr, "Error: %v\n", err)
	if failed != nil && (!a.parsed || errors.Is(err, errUsage)) {
		fmt.Fprint(stderr, failed.UsageString())
	}
	if a.status != 0 {
		return a.status
	}
	return 1
}

// RunCLI is the entry point of the profmerge binary.
func RunCLI() {
	logger.InitLogger(os.Stderr, slog.LevelInfo, false)
	os.Exit(Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr, nil))
}
