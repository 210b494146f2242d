package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/launchdarkly/api-test-harness/apitest"
	"github.com/launchdarkly/api-test-harness/framework"
	"github.com/launchdarkly/api-test-harness/framework/helpers"
)

const (
	// DefaultStatusTimeout is how long Start waits for the service to answer its status query.
	DefaultStatusTimeout = 10 * time.Second

	statusPollInterval = 100 * time.Millisecond

	// maxStatusRequestTime bounds each request made by Start, Stop, and CheckStopped. The status
	// timeout lowers it further.
	maxStatusRequestTime = 5 * time.Second
)

// ServiceInfo is status information returned by the service from the initial status query.
type ServiceInfo struct {
	ServiceInfoBase

	// FullData is the entire response received from the service, which might contain additional
	// properties beyond ServiceInfoBase.
	FullData []byte
}

// ServiceInfoBase is the basic set of properties that a service may report from its root resource.
// A service that returns no body, or a body that is not a JSON object, is still usable.
type ServiceInfoBase struct {
	// Name is the name of the service.
	Name string `json:"name"`

	// Capabilities is a list of strings representing optional features of the service.
	Capabilities framework.Capabilities `json:"capabilities"`
}

// RemoteService is an apitest.Instance for a service that is already running somewhere else.
//
// Start verifies that the service is alive by querying its base URL. If stopping was enabled with
// WithStopAtEnd, Stop sends a DELETE request to the base URL and CheckStopped waits until the
// service no longer accepts connections; otherwise they do nothing.
type RemoteService struct {
	baseURL       string
	statusTimeout time.Duration
	stopAtEnd     bool
	instances     map[string]apitest.PathResolver
	info          ServiceInfo
	client        *http.Client
	output        io.Writer
	logger        framework.Logger
}

// RemoteServiceOption is an option for NewRemoteService.
type RemoteServiceOption helpers.ConfigOption[RemoteService]

// WithStatusTimeout sets how long Start and CheckStopped keep polling the service.
func WithStatusTimeout(timeout time.Duration) RemoteServiceOption {
	return helpers.OptionFunc[RemoteService](func(s *RemoteService) error {
		if timeout <= 0 {
			return errors.New("status timeout must be positive")
		}
		s.statusTimeout = timeout
		return nil
	})
}

// WithStopAtEnd makes Stop tell the service to exit.
func WithStopAtEnd(stop bool) RemoteServiceOption {
	return helpers.OptionFunc[RemoteService](func(s *RemoteService) error {
		s.stopAtEnd = stop
		return nil
	})
}

// WithInstanceDir adds a named sub-instance whose files live under dir.
func WithInstanceDir(name, dir string) RemoteServiceOption {
	return helpers.OptionFunc[RemoteService](func(s *RemoteService) error {
		if name == "" {
			return errors.New("sub-instance name must not be empty")
		}
		s.instances[name] = apitest.DirResolver(dir)
		return nil
	})
}

// WithStartupOutput sets where connection progress is written during Start.
func WithStartupOutput(output io.Writer) RemoteServiceOption {
	return helpers.OptionFunc[RemoteService](func(s *RemoteService) error {
		s.output = output
		return nil
	})
}

// WithServiceLogger sets the logger for requests made by the lifecycle hooks. Its messages are
// prefixed with "[service] ".
func WithServiceLogger(logger framework.Logger) RemoteServiceOption {
	return helpers.OptionFunc[RemoteService](func(s *RemoteService) error {
		if logger != nil {
			s.logger = framework.LoggerWithPrefix(logger, "[service] ")
		}
		return nil
	})
}

// WithServiceHTTPClient sets the HTTP client used for the status query and the stop request.
func WithServiceHTTPClient(client *http.Client) RemoteServiceOption {
	return helpers.OptionFunc[RemoteService](func(s *RemoteService) error {
		if client == nil {
			return errors.New("HTTP client must not be nil")
		}
		s.client = client
		return nil
	})
}

// NewRemoteService creates a RemoteService. It does not contact the service until Start.
func NewRemoteService(baseURL string, options ...RemoteServiceOption) (*RemoteService, error) {
	if baseURL == "" {
		return nil, errors.New("service URL must not be empty")
	}
	s := &RemoteService{
		baseURL:       baseURL,
		statusTimeout: DefaultStatusTimeout,
		instances:     make(map[string]apitest.PathResolver),
		client:        http.DefaultClient,
		output:        io.Discard,
		logger:        framework.NullLogger(),
	}
	if err := helpers.ApplyOptions(s, options...); err != nil {
		return nil, err
	}
	return s, nil
}

// BaseURL returns the service URL.
func (s *RemoteService) BaseURL() string { return s.baseURL }

// Instances returns the configured sub-instances.
func (s *RemoteService) Instances() map[string]apitest.PathResolver { return s.instances }

// Info returns the status information received by Start.
func (s *RemoteService) Info() ServiceInfo { return s.info }

// Capabilities returns the capabilities reported by the service's status query.
func (s *RemoteService) Capabilities() framework.Capabilities { return s.info.Capabilities }

// Start polls the service's base URL until it responds or the status timeout elapses.
func (s *RemoteService) Start(ctx context.Context) error {
	info, err := s.queryServiceInfo(ctx)
	if err != nil {
		return err
	}
	s.info = info
	return nil
}

func (s *RemoteService) queryServiceInfo(ctx context.Context) (ServiceInfo, error) {
	fmt.Fprintf(s.output, "Connecting to service at %s", s.baseURL)

	deadline := time.Now().Add(s.statusTimeout)
	for {
		fmt.Fprintf(s.output, ".")
		status, respData, err := s.doRequest(ctx, http.MethodGet)
		if err == nil {
			fmt.Fprintln(s.output)
			if status < 200 || status > 299 {
				return ServiceInfo{}, fmt.Errorf("service returned status code %d", status)
			}
			if len(respData) == 0 {
				fmt.Fprintf(s.output, "Status query successful, but service provided no metadata\n")
				return ServiceInfo{}, nil
			}
			var base ServiceInfoBase
			if err := json.Unmarshal(respData, &base); err != nil {
				fmt.Fprintf(s.output, "Status query successful, but metadata was not a JSON object\n")
				return ServiceInfo{FullData: respData}, nil //nolint:nilerr
			}
			fmt.Fprintf(s.output, "Status query returned metadata: %s\n", string(respData))
			return ServiceInfo{ServiceInfoBase: base, FullData: respData}, nil
		}
		if ctx.Err() != nil {
			fmt.Fprintln(s.output)
			return ServiceInfo{}, ctx.Err()
		}
		if !time.Now().Before(deadline) {
			fmt.Fprintln(s.output)
			return ServiceInfo{}, fmt.Errorf("timed out, result of last query was: %w", err)
		}
		time.Sleep(statusPollInterval)
	}
}

// Stop tells the service to exit, if WithStopAtEnd was set.
func (s *RemoteService) Stop(ctx context.Context) error {
	if !s.stopAtEnd {
		return nil
	}
	s.logger.Printf("Telling service at %s to stop", s.baseURL)
	status, _, err := s.doRequest(ctx, http.MethodDelete)
	if err == nil && status >= 300 {
		return fmt.Errorf("service returned HTTP %d", status)
	}
	// An I/O error is normal if the service quit before sending a response
	return nil
}

// CheckStopped waits until the service stops accepting requests, if WithStopAtEnd was set.
func (s *RemoteService) CheckStopped(ctx context.Context) error {
	if !s.stopAtEnd {
		return nil
	}
	stopped := helpers.PollForSpecificResultValue(func() bool {
		_, _, err := s.doRequest(ctx, http.MethodHead)
		// A service that accepts the connection but never answers has not stopped.
		return err != nil && !errors.Is(err, context.DeadlineExceeded)
	}, s.statusTimeout, statusPollInterval, true)
	if !stopped {
		return fmt.Errorf("service at %s was still responding after %s", s.baseURL, s.statusTimeout)
	}
	return nil
}

func (s *RemoteService) doRequest(ctx context.Context, method string) (int, []byte, error) {
	timeout := maxStatusRequestTime
	if s.statusTimeout < timeout {
		timeout = s.statusTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL, nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}
