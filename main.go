package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/launchdarkly/api-test-harness/apitest"
	"github.com/launchdarkly/api-test-harness/cache"
	"github.com/launchdarkly/api-test-harness/config"
	"github.com/launchdarkly/api-test-harness/framework"
	"github.com/launchdarkly/api-test-harness/framework/harness"
	"github.com/launchdarkly/api-test-harness/framework/ldtest"
	"github.com/launchdarkly/api-test-harness/suite"
	"github.com/launchdarkly/api-test-harness/widgets"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const defaultExamplePort = 8111

var version = "dev" // set with -ldflags "-X main.version=..."

var errTestsFailed = errors.New("one or more tests failed")

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, errTestsFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "api-test-harness",
		Short:         "Integration tests for HTTP APIs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCommand(), newExampleServiceCommand(), newListAssertionsCommand())
	return root
}

func newRunCommand() *cobra.Command {
	var params commandParams
	cmd := &cobra.Command{
		Use:   "run --url <service URL> --suite <file|directory>",
		Short: "Run test suites against a service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Printf("api-test-harness v%s\n", strings.TrimSpace(version))
			results, err := run(cmd, params)
			if err != nil {
				return err
			}
			if !results.OK() {
				return errTestsFailed
			}
			return nil
		},
	}
	params.addFlags(cmd)
	return cmd
}

func run(cmd *cobra.Command, params commandParams) (*ldtest.Results, error) {
	cfg, err := params.resolveConfig(cmd)
	if err != nil {
		return nil, err
	}
	if params.skipFile != "" {
		if err := loadSuppressions(&params); err != nil {
			return nil, err
		}
	}
	suites, err := loadSuites(params.suitePaths)
	if err != nil {
		return nil, err
	}

	mainDebugLogger := newDebugLogger(params.debugAll)
	ctx := context.Background()

	service, err := newRemoteService(cfg, mainDebugLogger)
	if err != nil {
		return nil, err
	}
	// The status query runs before the tests so that its capabilities can select them. The test
	// run queries it again as part of starting the instance.
	startCtx, cancel := context.WithTimeout(ctx, cfg.StatusTimeout.Duration())
	err = service.Start(startCtx)
	cancel()
	if err != nil {
		return nil, err
	}
	info := service.Info()
	fmt.Printf("Connected to service %q with capabilities %v\n\n", info.Name, info.Capabilities)
	ldtest.PrintFilterDescription(params.filters, suite.RequiredCapabilities(suites), info.Capabilities)

	store, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}
	classification, err := cfg.ClassificationTable()
	if err != nil {
		return nil, err
	}

	testLogger := newTestLogger(params, cfg, info)
	results := ldtest.Run(
		ldtest.TestConfiguration{
			Filter:       params.filters,
			TestLogger:   testLogger,
			Capabilities: info.Capabilities,
		},
		func(t *ldtest.T) {
			apitest.Setup(t, apitest.Config{
				Instance:       service,
				Timeout:        cfg.Timeout.Duration(),
				Headers:        cfg.Headers,
				Cache:          store,
				DisableCache:   store == nil,
				Classification: classification,
				Context:        ctx,
				Logger:         mainDebugLogger,
			})
			suite.RunAll(t, suites)
		},
	)

	fmt.Println()
	if err := testLogger.EndLog(results); err != nil {
		return nil, fmt.Errorf("error writing log: %v", err)
	}

	if params.recordFailures != "" {
		if err := recordFailures(params.recordFailures, results); err != nil {
			return nil, err
		}
	}
	return &results, nil
}

func newDebugLogger(enabled bool) framework.Logger {
	if !enabled {
		return framework.NullLogger()
	}
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger
}

func newRemoteService(cfg config.Config, logger framework.Logger) (*harness.RemoteService, error) {
	options := []harness.RemoteServiceOption{
		harness.WithStatusTimeout(cfg.StatusTimeout.Duration()),
		harness.WithStopAtEnd(cfg.StopServiceAtEnd),
		harness.WithStartupOutput(os.Stdout),
		harness.WithServiceLogger(logger),
	}
	for name, dir := range cfg.Instances {
		options = append(options, harness.WithInstanceDir(name, dir))
	}
	return harness.NewRemoteService(cfg.BaseURL, options...)
}

func newTestLogger(params commandParams, cfg config.Config, info harness.ServiceInfo) ldtest.TestLogger {
	consoleLogger := ldtest.ConsoleTestLogger{
		DebugOutputOnFailure: params.debug || params.debugAll,
		DebugOutputOnSuccess: params.debugAll,
	}
	if params.jUnitFile == "" {
		return consoleLogger
	}
	properties := map[string]string{
		"serviceName": info.Name,
		"serviceURL":  cfg.BaseURL,
		"version":     version,
	}
	return ldtest.MultiTestLogger{
		consoleLogger,
		ldtest.NewJUnitTestLogger(params.jUnitFile, "api-test-harness", properties, params.filters),
	}
}

func loadSuites(paths []string) ([]suite.Suite, error) {
	var ret []suite.Suite
	for _, p := range paths {
		suites, err := suite.Load(p)
		if err != nil {
			return nil, err
		}
		ret = append(ret, suites...)
	}
	return ret, nil
}

func loadSuppressions(params *commandParams) error {
	file, err := os.Open(params.skipFile)
	if err != nil {
		return fmt.Errorf("cannot open provided suppression file: %v", err)
	}
	defer func() { _ = file.Close() }()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		escaped := regexp.QuoteMeta(line)
		if err := params.filters.MustNotMatch.Set(escaped); err != nil {
			return fmt.Errorf("cannot parse suppression: %v", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("while processing suppression file: %v", err)
	}
	return nil
}

func recordFailures(path string, results ldtest.Results) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create suppression file: %v", err)
	}
	defer func() { _ = f.Close() }()
	for _, test := range results.Failures {
		fmt.Fprintln(f, test.TestID)
	}
	return nil
}

func newExampleServiceCommand() *cobra.Command {
	var (
		port       int
		uploadsDir string
		verbose    bool
	)
	cmd := &cobra.Command{
		Use:   "example-service",
		Short: "Run the widget service that the example suites test",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := logrus.New()
			if !verbose {
				logger.SetLevel(logrus.WarnLevel)
			}
			if uploadsDir == "" {
				dir, err := os.MkdirTemp("", "widgets-uploads")
				if err != nil {
					return err
				}
				defer func() { _ = os.RemoveAll(dir) }()
				uploadsDir = dir
			}
			server := widgets.NewServer(fmt.Sprintf(":%d", port), uploadsDir, logger)
			if err := server.Start(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Widget service listening at %s\n", server.BaseURL())

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(signals)
			select {
			case <-signals:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return server.Stop(ctx)
			case <-server.Done():
				return nil
			}
		},
	}
	cmd.Flags().IntVar(&port, "port", defaultExamplePort, "port to listen on")
	cmd.Flags().StringVar(&uploadsDir, "uploads", "", "directory for attachments (default: a temporary directory)")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "log service messages")
	return cmd
}

func newListAssertionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list-assertions",
		Short: "List the assertions that suite files can use",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, a := range apitest.ListAssertions() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %d arguments\n", a.Name, a.Arity)
			}
		},
	}
}
