package misc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/2beens/contactform/internal/messages"
	"github.com/2beens/contactform/internal/supabase"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testProber struct {
	err   error
	calls int
}

func (p *testProber) Probe(_ context.Context) error {
	p.calls++
	return p.err
}

func setupMiscRouterForTests(t *testing.T, prober storeProber, credentials map[string]string) *mux.Router {
	t.Helper()
	r := mux.NewRouter()
	NewHandler(prober, credentials, "test-version").SetupRoutes(r)
	return r
}

func serve(t *testing.T, r http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestNewHandler_Routes(t *testing.T) {
	r := mux.NewRouter()
	NewHandler(nil, nil, "").SetupRoutes(r)

	for caseName, route := range map[string]struct {
		name   string
		path   string
		method string
	}{
		"root-get":       {name: "root", path: "/", method: "GET"},
		"root-options":   {name: "root", path: "/", method: "OPTIONS"},
		"health-get":     {name: "health", path: "/health", method: "GET"},
		"version-get":    {name: "version", path: "/version", method: "GET"},
		"diagnostic-get": {name: "test-supabase", path: "/test-supabase", method: "GET"},
	} {
		t.Run(caseName, func(t *testing.T) {
			req, err := http.NewRequest(route.method, route.path, nil)
			require.NoError(t, err)

			routeMatch := &mux.RouteMatch{}
			require.True(t, r.Match(req, routeMatch))
			assert.Equal(t, route.name, routeMatch.Route.GetName())
		})
	}
}

func TestHandler_RootAndHealth(t *testing.T) {
	r := setupMiscRouterForTests(t, &testProber{}, nil)

	rr := serve(t, r, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message":"Contact Form API is running"}`, rr.Body.String())

	rr = serve(t, r, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rr.Body.String())

	rr = serve(t, r, http.MethodGet, "/version")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "test-version", rr.Body.String())
}

func TestHandler_TestStore_Success(t *testing.T) {
	prober := &testProber{}
	r := setupMiscRouterForTests(t, prober, map[string]string{
		"SUPABASE_URL": "https://abc.supabase.co",
		"SUPABASE_KEY": "anon-key",
	})

	rr := serve(t, r, http.MethodGet, "/test-supabase")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, prober.calls)
	assert.JSONEq(t, `{
		"status": "success",
		"environment": {"SUPABASE_URL": "✓ Set", "SUPABASE_KEY": "✓ Set"},
		"connection": "✓ Connected",
		"table_exists": "✓ Table accessible"
	}`, rr.Body.String())
	// credentials are never echoed back
	assert.NotContains(t, rr.Body.String(), "anon-key")
}

func TestHandler_TestStore_MissingCredentials(t *testing.T) {
	prober := &testProber{}
	r := setupMiscRouterForTests(t, prober, map[string]string{
		"SUPABASE_URL": "",
		"SUPABASE_KEY": "anon-key",
	})

	rr := serve(t, r, http.MethodGet, "/test-supabase")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Zero(t, prober.calls)
	assert.JSONEq(t, `{
		"status": "error",
		"environment": {"SUPABASE_URL": "✗ Missing", "SUPABASE_KEY": "✓ Set"},
		"connection": "✗ Cannot connect - missing credentials"
	}`, rr.Body.String())
}

func TestHandler_TestStore_PostgresCredentials(t *testing.T) {
	r := setupMiscRouterForTests(t, &testProber{}, map[string]string{
		"DATABASE_URL": "",
	})

	rr := serve(t, r, http.MethodGet, "/test-supabase")
	require.Equal(t, http.StatusOK, rr.Code)

	var status StoreStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, "error", status.Status)
	assert.Equal(t, map[string]string{"DATABASE_URL": "✗ Missing"}, status.Environment)
}

func TestHandler_TestStore_ProbeFailure(t *testing.T) {
	apiErr := &supabase.APIError{
		StatusCode: http.StatusNotFound,
		Code:       "42P01",
		Message:    `relation "public.messages" does not exist`,
	}
	prober := &testProber{
		err: &messages.Error{Kind: messages.KindOperational, Op: messages.OpProbe, Err: apiErr},
	}
	r := setupMiscRouterForTests(t, prober, map[string]string{
		"SUPABASE_URL": "https://abc.supabase.co",
		"SUPABASE_KEY": "anon-key",
	})

	rr := serve(t, r, http.MethodGet, "/test-supabase")
	require.Equal(t, http.StatusOK, rr.Code)

	var status StoreStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, "error", status.Status)
	assert.Equal(t, apiErr.Error(), status.Error)
	assert.Contains(t, status.Details, "kind: operational")
	assert.Contains(t, status.Details, "*supabase.APIError")
	assert.Empty(t, status.Connection)
	assert.Empty(t, status.TableExists)
}

func TestErrorDetails(t *testing.T) {
	base := errors.New("dial tcp: connection refused")
	err := &messages.Error{
		Kind: messages.KindOperational,
		Op:   messages.OpProbe,
		Err:  &supabase.ConnectionError{Endpoint: "https://abc.supabase.co", Err: base},
	}

	details := errorDetails(messages.KindOf(err), err)
	assert.Equal(t,
		"kind: operational\n"+
			"*messages.Error: connect to https://abc.supabase.co: dial tcp: connection refused\n"+
			"*supabase.ConnectionError: connect to https://abc.supabase.co: dial tcp: connection refused\n"+
			"*errors.errorString: dial tcp: connection refused",
		details,
	)
}
