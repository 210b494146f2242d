// Package config defines the harness configuration file. It can be JSON or YAML; values given on
// the command line override it.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/launchdarkly/api-test-harness/apitest"
	"github.com/launchdarkly/api-test-harness/cache"
	"github.com/launchdarkly/api-test-harness/data"
)

const (
	DefaultTimeout       = 10 * time.Second
	DefaultStatusTimeout = 10 * time.Second
)

// Config is the harness configuration.
type Config struct {
	// BaseURL is the URL of the service under test.
	BaseURL string `json:"baseURL"`

	// Timeout is the default per-request timeout.
	Timeout Duration `json:"timeout"`

	// StatusTimeout is how long to wait for the service to answer its status query, and to stop.
	StatusTimeout Duration `json:"statusTimeout"`

	// Headers are sent with every request.
	Headers map[string]string `json:"headers"`

	Cache cache.Options `json:"cache"`

	// Classification adds or replaces failure assertion patterns, by status code. An empty pattern
	// means the standard "Response code <status>" pattern.
	Classification map[string]string `json:"classification"`

	// Instances maps sub-instance names to local directories.
	Instances map[string]string `json:"instances"`

	// StopServiceAtEnd tells the service to exit after the last test.
	StopServiceAtEnd bool `json:"stopServiceAtEnd"`
}

// Duration is a time.Duration that is written in configuration files as a string such as "5s",
// or as a number of milliseconds.
type Duration time.Duration

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var millis int64
	if err := json.Unmarshal(data, &millis); err != nil {
		return fmt.Errorf("invalid duration %s: must be a string such as \"5s\" or a number of milliseconds",
			string(data))
	}
	*d = Duration(time.Duration(millis) * time.Millisecond)
	return nil
}

// Default returns the configuration that is used when no file is given.
func Default() Config {
	return Config{
		Timeout:       Duration(DefaultTimeout),
		StatusTimeout: Duration(DefaultStatusTimeout),
		Cache:         cache.Options{Type: cache.TypeMemory},
	}
}

// Load reads a configuration file. Properties that the file does not set keep their Default values.
func Load(path string) (Config, error) {
	ret := Default()
	if err := data.ParseFile(path, &ret); err != nil {
		return Config{}, err
	}
	return ret, nil
}

// Validate checks for values that cannot work.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("service URL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("service URL %q must be an absolute http or https URL", c.BaseURL)
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.StatusTimeout <= 0 {
		return errors.New("status timeout must be positive")
	}
	if _, err := c.ClassificationTable(); err != nil {
		return err
	}
	return nil
}

// ClassificationTable returns the default classification with this configuration's entries
// applied.
func (c Config) ClassificationTable() (apitest.Classification, error) {
	entries := make(map[int]string, len(c.Classification))
	for key, pattern := range c.Classification {
		code, err := strconv.Atoi(key)
		if err != nil || code < 100 || code > 599 {
			return nil, fmt.Errorf("classification key %q is not an HTTP status code", key)
		}
		entries[code] = pattern
	}
	return apitest.ParseClassification(entries)
}
