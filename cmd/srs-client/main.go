// srs-client runs one script on a Script Runtime Service and prints its
// output.
//
//	srs-client <server> <username> <password> <script>
//	srs-client --token <api-key> <server> <script>
//
// The exit status tells what happened: 0 success, 2 bad arguments, 3 the
// runspace failed to start, 4 the script failed, 5 a wait timed out, 6 the
// login was rejected, 7 the script was rejected, 100 anything else and 130
// when interrupted.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/duke-git/lancet/v2/strutil"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	srs "github.com/smnsjas/go-srsclient"
	"github.com/smnsjas/go-srsclient/config"
	srserrors "github.com/smnsjas/go-srsclient/errors"
	"github.com/smnsjas/go-srsclient/host"
	"github.com/smnsjas/go-srsclient/logging"
	"github.com/smnsjas/go-srsclient/objects"
	"github.com/smnsjas/go-srsclient/pipeline"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configPath   string
	logLevel     string
	logFormat    string
	insecure     bool
	pollInterval time.Duration
	sessionWait  time.Duration
	jobWait      time.Duration
	streams      []string
	outputFormat string
	params       []string
	runspaceName string
	vcConnection bool
	token        string
	logout       bool
}

// overrides maps each flag to its configuration path.
var overrides = []struct {
	flag string
	path string
	get  func(*options) string
}{
	{"log-level", "logging.level", func(o *options) string { return o.logLevel }},
	{"log-format", "logging.format", func(o *options) string { return o.logFormat }},
	{"insecure", "server.insecure", func(o *options) string { return fmt.Sprint(o.insecure) }},
	{"poll-interval", "poll.interval", func(o *options) string { return o.pollInterval.String() }},
	{"session-timeout", "runspace.timeout", func(o *options) string { return o.sessionWait.String() }},
	{"job-timeout", "script.job_timeout", func(o *options) string { return o.jobWait.String() }},
	{"stream", "script.streams", func(o *options) string { return strings.Join(o.streams, ",") }},
	{"output-format", "script.output_format", func(o *options) string { return o.outputFormat }},
	{"runspace-name", "runspace.name", func(o *options) string { return o.runspaceName }},
	{"vc-connection", "runspace.run_vc_connection_script", func(o *options) string { return fmt.Sprint(o.vcConnection) }},
	{"logout", "server.logout", func(o *options) string { return fmt.Sprint(o.logout) }},
}

// execute runs the command line and returns the exit status.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	code := exitOK
	cmd := newRootCmd(stdout, stderr, &code)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		// argument and flag errors never reach RunE
		fmt.Fprintf(stderr, "Error: %v\n", err)
		fmt.Fprintln(stderr, cmd.UsageString())
		return exitUsage
	}
	return code
}

func newRootCmd(stdout, stderr io.Writer, code *int) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "srs-client <server> <username> <password> <script>",
		Short: "Run a PowerShell script on a Script Runtime Service",
		Long: `Logs in to the service, creates a runspace, runs the script in it, prints
the script output and error stream and deletes the runspace.

With --token the username and password are omitted:

  srs-client --token <api-key> <server> <script>`,
		Version:       srs.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			names := []string{"server", "username", "password", "script"}
			if opts.token != "" {
				names = []string{"server", "script"}
			}
			if err := cobra.ExactArgs(len(names))(cmd, args); err != nil {
				return err
			}
			for i, arg := range args {
				if strutil.IsBlank(arg) {
					return srserrors.InvalidInput(names[i] + " must not be empty")
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			err := runScript(cmd, opts, args, stdout)
			*code = exitCode(err)
			if err != nil && !rendered(err) {
				fmt.Fprintf(stderr, "Error: %v\n", err)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	f.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	f.StringVar(&opts.logFormat, "log-format", logging.FormatConsole, "log format: console or json")
	f.BoolVar(&opts.insecure, "insecure", false, "skip TLS certificate verification")
	f.DurationVar(&opts.pollInterval, "poll-interval", 500*time.Millisecond, "status poll interval")
	f.DurationVar(&opts.sessionWait, "session-timeout", 5*time.Minute, "maximum wait for the runspace to start")
	f.DurationVar(&opts.jobWait, "job-timeout", 30*time.Minute, "maximum wait for the script to finish")
	f.StringSliceVar(&opts.streams, "stream", []string{"error"}, "stream to print after the output (repeatable)")
	f.StringVar(&opts.outputFormat, "output-format", "", "output object format: text or json")
	f.StringArrayVar(&opts.params, "param", nil, "script parameter as name=value (repeatable)")
	f.StringVar(&opts.runspaceName, "runspace-name", "MyPSRunspace", "name of the created runspace")
	f.BoolVar(&opts.vcConnection, "vc-connection", true, "connect the runspace to vCenter")
	f.StringVar(&opts.token, "token", "", "use an existing API key instead of logging in")
	f.BoolVar(&opts.logout, "logout", false, "end the API session after the run")

	return cmd
}

func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	set := make(map[string]string)
	for _, o := range overrides {
		if cmd.Flags().Changed(o.flag) {
			set[o.path] = o.get(opts)
		}
	}
	return config.NewLoader().
		WithConfigPath(opts.configPath).
		WithOverrides(set).
		Load()
}

func runScript(cmd *cobra.Command, opts *options, args []string, stdout io.Writer) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	logger, err := logging.NewWithWriter(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	var (
		cred *objects.Credential
		text string
	)
	if opts.token != "" {
		cred, err = objects.NewTokenCredential(opts.token)
		text = args[1]
	} else {
		cred, err = objects.NewPasswordCredential(args[1], args[2])
		text = args[3]
	}
	if err != nil {
		return err
	}

	script := pipeline.Script{Text: text}
	for _, p := range opts.params {
		param, err := pipeline.ParseParameter(p)
		if err != nil {
			return srserrors.InvalidInput(err.Error())
		}
		script.Parameters = append(script.Parameters, param)
	}

	c, err := srs.New(args[0], cfg,
		srs.WithLogger(logger),
		srs.WithUI(host.NewConsole(stdout)),
		srs.WithSecurityEventCallback(func(event string, details map[string]any) {
			logger.Warn("security event", zap.String("event", event), zap.Any("details", details))
		}),
	)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	_, err = c.Run(cmd.Context(), cred, script)
	return err
}
