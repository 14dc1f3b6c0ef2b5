// srs-smoke runs a suite of scripts against a Script Runtime Service in a
// single runspace and reports which ones behaved as expected.
//
//	srs-smoke [--cases cases.yaml] <server> <username> <password>
//
// A case file looks like:
//
//	cases:
//	  - name: Simple Command
//	    description: Basic Get-Date command
//	    script: Get-Date
//	  - name: Missing Path
//	    script: Get-Item '/nonexistent'
//	    expect_error: true
//
// The exit status is 0 when every case passed, 1 when any failed, 2 on bad
// arguments and 100 when the runspace could not be used.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	srs "github.com/smnsjas/go-srsclient"
	"github.com/smnsjas/go-srsclient/config"
	srserrors "github.com/smnsjas/go-srsclient/errors"
	"github.com/smnsjas/go-srsclient/logging"
	"github.com/smnsjas/go-srsclient/messages"
	"github.com/smnsjas/go-srsclient/objects"
	"github.com/smnsjas/go-srsclient/pipeline"
	"github.com/smnsjas/go-srsclient/runspace"
)

const (
	exitOK      = 0
	exitFailed  = 1
	exitUsage   = 2
	exitSession = 100
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configPath string
	casesPath  string
	concurrent bool
	logLevel   string
	overrides  map[string]string
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &options{}
	code := exitOK

	cmd := &cobra.Command{
		Use:           "srs-smoke <server> <username> <password>",
		Short:         "Run a smoke test suite against a Script Runtime Service",
		Version:       srs.Version,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.overrides = map[string]string{}
			if cmd.Flags().Changed("log-level") {
				opts.overrides["logging.level"] = opts.logLevel
			}
			code = run(cmd.Context(), opts, args, stdout, stderr)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "YAML configuration file")
	cmd.Flags().StringVar(&opts.casesPath, "cases", "", "YAML file of test cases (default: built-in suite)")
	cmd.Flags().BoolVar(&opts.concurrent, "concurrent", true, "also run two scripts at once in the runspace")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn or error")

	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	return code
}

func run(ctx context.Context, opts *options, args []string, stdout, stderr io.Writer) int {
	cases := defaultCases
	if opts.casesPath != "" {
		var err error
		if cases, err = loadCases(opts.casesPath); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitUsage
		}
	}

	cfg, err := config.NewLoader().
		WithConfigPath(opts.configPath).
		WithOverrides(opts.overrides).
		Load()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	logger, err := logging.NewWithWriter(cfg.Logging, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	defer func() { _ = logger.Sync() }()

	c, err := srs.New(args[0], cfg, srs.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	defer func() { _ = c.Close() }()

	cred, err := objects.NewPasswordCredential(args[1], args[2])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	// Every case needs the error stream to judge the outcome.
	runner := pipeline.NewRunner(c.API(),
		pipeline.WithStreams(messages.StreamError),
		pipeline.WithPollPolicy(cfg.JobPolicy()),
		pipeline.WithLogger(logger.Named("pipeline")),
	)

	fmt.Fprintln(stdout, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(stdout, "║          SRS Smoke Test Suite                                ║")
	fmt.Fprintln(stdout, "╚══════════════════════════════════════════════════════════════╝")

	var passed, failed int
	err = c.Manager().Use(ctx, cred, cfg.SessionConfig(), func(ctx context.Context, sess *runspace.Session) error {
		cred.Clear()
		logger.Info("runspace ready for smoke tests", zap.String("runspace_id", sess.ID()))

		for _, tc := range cases {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if runTest(ctx, stdout, runner, sess, tc) {
				passed++
			} else {
				failed++
			}
		}

		if opts.concurrent {
			fmt.Fprintln(stdout, "\n═══════════════════════════════════════════════════════════════")
			fmt.Fprintln(stdout, "CONCURRENT EXECUTION TEST")
			fmt.Fprintln(stdout, "═══════════════════════════════════════════════════════════════")
			if runConcurrentTest(ctx, stdout, runner, sess) {
				passed++
			} else {
				failed++
			}
		}
		return nil
	})
	cred.Clear()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if srserrors.Is(err, srserrors.ErrCodeCreation) {
			fmt.Fprintf(stdout, "Error on runspace creation: %s\n", srserrors.Reason(err))
		}
		return exitSession
	}

	printSummary(stdout, passed, failed)
	if failed > 0 {
		return exitFailed
	}
	return exitOK
}

// runTest runs one case and prints its verdict.
func runTest(ctx context.Context, w io.Writer, runner *pipeline.Runner, sess *runspace.Session, tc TestCase) bool {
	fmt.Fprintf(w, "\n%s\n", rule)
	fmt.Fprintf(w, "TEST: %s\n", tc.Name)
	if tc.Description != "" {
		fmt.Fprintf(w, "DESC: %s\n", tc.Description)
	}
	fmt.Fprintf(w, "CMD:  %s\n", tc.Script)
	if len(tc.Parameters) > 0 {
		fmt.Fprintf(w, "PARAMS: %v\n", tc.Parameters)
	}
	fmt.Fprintf(w, "%s\n", rule)

	job, out, err := runner.Run(ctx, sess, tc.script())
	if err != nil {
		fmt.Fprintf(w, "❌ FAILED: %v\n", err)
		return false
	}

	output := strings.Join(out.Lines, "\n")
	errOutput := strings.Join(out.Messages(messages.StreamError), "\n")
	if job.State() != pipeline.StateSuccess {
		errOutput = strings.TrimSpace(job.Reason() + "\n" + errOutput)
	}
	hasError := errOutput != ""

	if tc.ExpectError {
		if hasError {
			fmt.Fprintf(w, "✅ PASSED: Expected error received\n")
			fmt.Fprintf(w, "   Error: %s\n", truncate(errOutput, 200))
			return true
		}
		fmt.Fprintf(w, "❌ FAILED: Expected error but got none\n")
		return false
	}

	if job.State() != pipeline.StateSuccess {
		fmt.Fprintf(w, "❌ FAILED: Script ended %s\n", job.State())
		fmt.Fprintf(w, "   Error: %s\n", truncate(errOutput, 200))
		return false
	}
	if hasError {
		fmt.Fprintf(w, "⚠️  WARNING: Unexpected error stream output\n")
		fmt.Fprintf(w, "   Error: %s\n", truncate(errOutput, 200))
	}
	if output != "" {
		fmt.Fprintf(w, "✅ PASSED: Received output\n")
		fmt.Fprintf(w, "   Output: %s\n", truncate(output, 200))
		return true
	}
	fmt.Fprintf(w, "✅ PASSED: Script completed without output\n")
	return true
}

// truncate shortens s to at most maxLen runes.
func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > maxLen {
		return string([]rune(s)[:maxLen]) + "..."
	}
	return s
}

// runConcurrentTest submits two scripts to the same runspace at once.
func runConcurrentTest(ctx context.Context, w io.Writer, runner *pipeline.Runner, sess *runspace.Session) bool {
	fmt.Fprintf(w, "\n%s\n", rule)
	fmt.Fprintf(w, "TEST: Concurrent Executions\n")
	fmt.Fprintf(w, "DESC: Run two scripts simultaneously in one runspace\n")
	fmt.Fprintf(w, "%s\n", rule)

	scripts := []pipeline.Script{
		{Name: "Concurrent1", Text: "Start-Sleep -Milliseconds 500; 'Execution1-Done'"},
		{Name: "Concurrent2", Text: "'Execution2-Done'"},
	}

	var wg sync.WaitGroup
	results := make([]string, len(scripts))
	errs := make([]error, len(scripts))
	for i, s := range scripts {
		wg.Add(1)
		go func(i int, s pipeline.Script) {
			defer wg.Done()
			job, out, err := runner.Run(ctx, sess, s)
			switch {
			case err != nil:
				errs[i] = err
			case job.State() != pipeline.StateSuccess:
				errs[i] = fmt.Errorf("ended %s: %s", job.State(), job.Reason())
			default:
				results[i] = strings.Join(out.Lines, "\n")
			}
		}(i, s)
	}
	wg.Wait()

	passed := true
	for i, result := range results {
		switch {
		case errs[i] != nil:
			fmt.Fprintf(w, "❌ Execution %d error: %v\n", i+1, errs[i])
			passed = false
		case strings.Contains(result, fmt.Sprintf("Execution%d-Done", i+1)):
			fmt.Fprintf(w, "✅ Execution %d completed with expected output\n", i+1)
		default:
			fmt.Fprintf(w, "⚠️  Execution %d output: %s\n", i+1, truncate(result, 100))
		}
	}
	if passed {
		fmt.Fprintf(w, "✅ PASSED: Concurrent executions completed successfully\n")
	}
	return passed
}

func printSummary(w io.Writer, passed, failed int) {
	fmt.Fprintln(w, "\n╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                    TEST SUMMARY                              ║")
	fmt.Fprintln(w, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintf(w, "   Total Tests: %d\n", passed+failed)
	fmt.Fprintf(w, "   ✅ Passed:   %d\n", passed)
	fmt.Fprintf(w, "   ❌ Failed:   %d\n", failed)
	if failed == 0 {
		fmt.Fprintln(w, "\n   ALL TESTS PASSED")
	} else {
		fmt.Fprintf(w, "\n   ⚠️  %d test(s) failed\n", failed)
	}
}
