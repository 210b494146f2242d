package main

import (
	"errors"
	"time"

	"github.com/launchdarkly/api-test-harness/cache"
	"github.com/launchdarkly/api-test-harness/config"
	"github.com/launchdarkly/api-test-harness/framework/helpers"
	"github.com/launchdarkly/api-test-harness/framework/ldtest"

	"github.com/spf13/cobra"
)

type commandParams struct {
	serviceURL       string
	configFile       string
	suitePaths       []string
	filters          ldtest.RegexFilters
	instances        map[string]string
	headers          map[string]string
	timeout          time.Duration
	statusTimeout    time.Duration
	cacheType        string
	stopServiceAtEnd bool
	debug            bool
	debugAll         bool
	jUnitFile        string
	skipFile         string
	recordFailures   string
}

func (c *commandParams) addFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&c.serviceURL, "url", "", "base URL of the service under test")
	fs.StringVar(&c.configFile, "config", "", "JSON or YAML configuration file")
	fs.StringArrayVar(&c.suitePaths, "suite", nil, "suite file or directory (may be repeated)")
	fs.Var(&c.filters.MustMatch, "run", "regex pattern(s) to select tests to run")
	fs.Var(&c.filters.MustNotMatch, "skip", "regex pattern(s) to select tests not to run")
	fs.StringToStringVar(&c.instances, "instance", nil, "sub-instance directory, as name=dir")
	fs.StringToStringVar(&c.headers, "header", nil, "header to send with every request, as name=value")
	fs.DurationVar(&c.timeout, "timeout", config.DefaultTimeout, "default per-request timeout")
	fs.DurationVar(&c.statusTimeout, "status-timeout", config.DefaultStatusTimeout,
		"how long to wait for the service to respond, and to stop")
	fs.StringVar(&c.cacheType, "cache", "", "response cache: memory, redis, consul, or dynamodb")
	fs.BoolVar(&c.stopServiceAtEnd, "stop-service-at-end", false, "tell the service to exit after the test run")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging for failed tests")
	fs.BoolVar(&c.debugAll, "debug-all", false, "enable debug logging for all tests")
	fs.StringVar(&c.jUnitFile, "junit", "", "write JUnit XML output to the specified path")
	fs.StringVar(&c.skipFile, "skip-from", "", "file of test IDs to skip, one per line")
	fs.StringVar(&c.recordFailures, "record-failures", "", "write the IDs of failed tests to the specified path")
}

// resolveConfig loads the configuration file, if any, and applies the flags that were set on the
// command line on top of it.
func (c *commandParams) resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if c.configFile != "" {
		loaded, err := config.Load(c.configFile)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.BaseURL = c.serviceURL
	}
	if flags.Changed("timeout") {
		cfg.Timeout = config.Duration(c.timeout)
	}
	if flags.Changed("status-timeout") {
		cfg.StatusTimeout = config.Duration(c.statusTimeout)
	}
	if flags.Changed("cache") {
		cfg.Cache.Type = cache.Type(c.cacheType)
	}
	if flags.Changed("stop-service-at-end") {
		cfg.StopServiceAtEnd = c.stopServiceAtEnd
	}
	cfg.Headers = mergeStrings(cfg.Headers, c.headers)
	cfg.Instances = mergeStrings(cfg.Instances, c.instances)

	if len(c.suitePaths) == 0 {
		return cfg, errors.New("at least one --suite is required")
	}
	return cfg, cfg.Validate()
}

func mergeStrings(base, overrides map[string]string) map[string]string {
	if len(overrides) == 0 {
		return base
	}
	ret := helpers.CopyMap(base)
	for k, v := range overrides {
		ret[k] = v
	}
	return ret
}
