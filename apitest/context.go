package apitest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/launchdarkly/api-test-harness/apiclient"
	"github.com/launchdarkly/api-test-harness/cache"
	"github.com/launchdarkly/api-test-harness/formdata"
	"github.com/launchdarkly/api-test-harness/framework"
	"github.com/launchdarkly/api-test-harness/framework/ldtest"
	"github.com/launchdarkly/api-test-harness/transport"
)

// DefaultTimeout is the per-request timeout used if Config.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// State is the lifecycle state of a TestContext.
type State int

const (
	Uninitialized State = iota
	Started
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Started:
		return "started"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config describes how Setup builds a TestContext. Only Instance is required.
type Config struct {
	Instance Instance

	// Transport defaults to an HTTPTransport.
	Transport transport.Transport

	// Timeout is the default per-request timeout; zero means DefaultTimeout.
	Timeout time.Duration

	// Headers are sent with every request.
	Headers map[string]string

	// Cache is the shared response cache. If it is nil, a memory cache is created and closed at
	// teardown, unless DisableCache is set.
	Cache        cache.Store
	DisableCache bool

	// Jar defaults to an empty cookie jar.
	Jar *transport.Jar

	// Classification defaults to DefaultClassification().
	Classification Classification

	// Context is used for lifecycle hooks and for requests. It defaults to context.Background().
	Context context.Context

	// Logger receives lifecycle and transport messages that are not specific to a test.
	Logger framework.Logger
}

// TestContext is the state shared by every test in a run: the instance under test, the
// configured client, and the error classification. Setup attaches it to every test scope.
type TestContext struct {
	instance       Instance
	client         *apiclient.Client
	classification Classification
	ctx            context.Context
	logger         framework.Logger
	ownedCache     cache.Store
	state          State
}

// Setup creates the TestContext for a run, starts the instance under test, and registers the
// assertions and lifecycle hooks on t, which should be the root scope of the run.
//
// Every subtest started afterward has the TestContext as its context. After the last subtest,
// the instance is stopped and confirmed stopped. If the instance cannot be started, the error
// is reported on t and the root scope exits immediately.
func Setup(t *ldtest.T, config Config) *TestContext {
	t.Helper()

	tc := &TestContext{
		instance:       config.Instance,
		classification: config.Classification,
		ctx:            config.Context,
		logger:         config.Logger,
	}
	if tc.ctx == nil {
		tc.ctx = context.Background()
	}
	if tc.logger == nil {
		tc.logger = framework.NullLogger()
	}
	if tc.classification == nil {
		tc.classification = DefaultClassification()
	}

	registerAssertions(t)

	if tc.instance == nil {
		t.Errorf("no instance under test was configured")
		t.FailNow()
	}

	if err := tc.instance.Start(tc.ctx); err != nil {
		t.Errorf("failed to start instance under test: %s", err)
		t.FailNow()
	}

	tr := config.Transport
	if tr == nil {
		ht, err := transport.NewHTTPTransport(
			transport.WithLogger(framework.LoggerWithPrefix(tc.logger, "[cache] ")))
		if err != nil {
			t.Errorf("failed to create transport: %s", err)
			t.FailNow()
		}
		tr = ht
	}
	defaults := apiclient.Defaults{
		BaseURL: tc.instance.BaseURL(),
		Timeout: config.Timeout,
		Headers: config.Headers,
		Jar:     config.Jar,
		Cache:   config.Cache,
	}
	if defaults.Timeout <= 0 {
		defaults.Timeout = DefaultTimeout
	}
	if defaults.Jar == nil {
		defaults.Jar = transport.NewJar()
	}
	if defaults.Cache == nil && !config.DisableCache {
		tc.ownedCache = cache.NewMemoryStore()
		defaults.Cache = tc.ownedCache
	}
	tc.client = apiclient.New(tr, defaults)

	tc.state = Started
	tc.logger.Printf("Instance under test started at %s", defaults.BaseURL)

	t.SetContext(tc)
	t.BeforeEach(func(t *ldtest.T) {
		t.SetContext(tc)
		if tc.state == Started {
			tc.state = Running
		}
	})
	t.Teardown(tc.stop)

	return tc
}

func (tc *TestContext) stop(t *ldtest.T) {
	if tc.state == Stopped {
		return
	}
	tc.state = Stopped
	defer tc.closeCache()
	if err := tc.instance.Stop(tc.ctx); err != nil {
		t.Errorf("failed to stop instance under test: %s", err)
		return
	}
	if err := tc.instance.CheckStopped(tc.ctx); err != nil {
		t.Errorf("instance under test did not stop: %s", err)
		return
	}
	tc.logger.Printf("Instance under test stopped")
}

func (tc *TestContext) closeCache() {
	if tc.ownedCache != nil {
		_ = tc.ownedCache.Close()
		tc.ownedCache = nil
	}
}

// ContextOf returns the TestContext attached to a test scope, or nil if Setup was not called for
// this run.
func ContextOf(t *ldtest.T) *TestContext {
	tc, _ := t.Context().(*TestContext)
	return tc
}

// State returns the current lifecycle state.
func (tc *TestContext) State() State { return tc.state }

// Instance returns the instance under test.
func (tc *TestContext) Instance() Instance { return tc.instance }

// Classification returns the error classification used by failure assertions.
func (tc *TestContext) Classification() Classification { return tc.classification }

// Context returns the context used for requests.
func (tc *TestContext) Context() context.Context { return tc.ctx }

// Client returns the shared client. It does not write a request log; see ClientFor.
func (tc *TestContext) Client() *apiclient.Client { return tc.client }

// ClientFor returns the shared client, logging its requests to the debug output of t.
func (tc *TestContext) ClientFor(t *ldtest.T) *apiclient.Client {
	return tc.client.WithLogger(t.DebugLogger())
}

// URL resolves a path against the instance's base URL.
func (tc *TestContext) URL(path string) string { return tc.client.URL(path) }

// CookieString returns the cookies that would be sent with a request to path.
func (tc *TestContext) CookieString(path string) (string, error) {
	return tc.client.CookieString(tc.ctx, path)
}

// Path resolves path elements with the named sub-instance's PathResolver.
func (tc *TestContext) Path(instance string, elem ...string) (string, error) {
	resolver, ok := tc.instance.Instances()[instance]
	if !ok || resolver == nil {
		return "", fmt.Errorf("instance under test has no sub-instance named %q", instance)
	}
	return resolver.RunPath(elem...), nil
}

// ReadFile reads a file belonging to a named sub-instance.
func (tc *TestContext) ReadFile(instance string, elem ...string) ([]byte, error) {
	path, err := tc.Path(instance, elem...)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path) //nolint:gosec
}

// FileBody returns a body whose content is a JSON file belonging to a named sub-instance. The
// file is read when the request is issued, not when FileBody is called. The content is sent
// as-is, so it must be valid JSON unless JSON encoding is disabled for the request.
func (tc *TestContext) FileBody(instance string, elem ...string) apiclient.Body {
	return apiclient.Deferred(func() (apiclient.Body, error) {
		data, err := tc.ReadFile(instance, elem...)
		if err != nil {
			return nil, err
		}
		return apiclient.Literal{Value: json.RawMessage(data)}, nil
	})
}

// FileUpload returns a multipart body with a single file field whose content is a file
// belonging to a named sub-instance. The file is read when the request is issued.
func (tc *TestContext) FileUpload(field, contentType, instance string, elem ...string) apiclient.Body {
	return apiclient.Deferred(func() (apiclient.Body, error) {
		path, err := tc.Path(instance, elem...)
		if err != nil {
			return nil, err
		}
		return apiclient.Multipart{Payload: formdata.New().AddFileFromPath(field, path, contentType)}, nil
	})
}
