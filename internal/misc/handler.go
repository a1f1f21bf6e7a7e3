package misc

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/2beens/contactform/internal/messages"
	"github.com/2beens/contactform/internal/telemetry/tracing"
	"github.com/2beens/contactform/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	envSet     = "✓ Set"
	envMissing = "✗ Missing"
)

type storeProber interface {
	Probe(ctx context.Context) error
}

// StoreStatus is the /test-supabase diagnostic answer.
type StoreStatus struct {
	Status      string            `json:"status"`
	Environment map[string]string `json:"environment"`
	Connection  string            `json:"connection,omitempty"`
	TableExists string            `json:"table_exists,omitempty"`
	Error       string            `json:"error,omitempty"`
	Details     string            `json:"details,omitempty"`
}

type Handler struct {
	prober      storeProber
	credentials map[string]string
	versionInfo string
}

// NewHandler takes the store credentials keyed by env var name; only their
// presence is ever reported.
func NewHandler(
	prober storeProber,
	credentials map[string]string,
	versionInfo string,
) *Handler {
	return &Handler{
		prober:      prober,
		credentials: credentials,
		versionInfo: versionInfo,
	}
}

func (handler *Handler) SetupRoutes(mainRouter *mux.Router) {
	mainRouter.HandleFunc("/", handler.handleRoot).Methods("GET", "OPTIONS").Name("root")
	mainRouter.HandleFunc("/health", handler.handleHealth).Methods("GET").Name("health")
	mainRouter.HandleFunc("/version", handler.handleGetVersionInfo).Methods("GET").Name("version")
	mainRouter.HandleFunc("/test-supabase", handler.handleTestStore).Methods("GET").Name("test-supabase")
}

func (handler *Handler) handleRoot(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteJSONResponseOK(w, `{"message":"Contact Form API is running"}`)
}

func (handler *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteJSONResponseOK(w, `{"status":"healthy"}`)
}

func (handler *Handler) handleGetVersionInfo(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteTextResponseOK(w, handler.versionInfo)
}

func (handler *Handler) handleTestStore(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.StartSpan(r.Context(), "miscHandler.testStore")
	defer span.End()

	status := StoreStatus{
		Environment: make(map[string]string, len(handler.credentials)),
	}

	var missing []string
	for name, value := range handler.credentials {
		if value == "" {
			status.Environment[name] = envMissing
			missing = append(missing, name)
			continue
		}
		status.Environment[name] = envSet
	}

	if len(missing) > 0 || handler.prober == nil {
		sort.Strings(missing)
		log.Warnf("store diagnostic: missing credentials [%s]", strings.Join(missing, ", "))
		span.SetStatus(codes.Error, "missing-credentials")
		status.Status = "error"
		status.Connection = "✗ Cannot connect - missing credentials"
		pkg.WriteJSON(w, http.StatusOK, status)
		return
	}

	if err := handler.prober.Probe(ctx); err != nil {
		kind := messages.KindOf(err)
		log.WithField("kind", kind).Errorf("store diagnostic failed: %s", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "probe-failed")
		status.Status = "error"
		status.Error = err.Error()
		status.Details = errorDetails(kind, err)
		pkg.WriteJSON(w, http.StatusOK, status)
		return
	}

	span.SetAttributes(attribute.Bool("store.reachable", true))
	status.Status = "success"
	status.Connection = "✓ Connected"
	status.TableExists = "✓ Table accessible"
	pkg.WriteJSON(w, http.StatusOK, status)
}

// errorDetails renders the error kind followed by every wrapped cause.
func errorDetails(kind messages.Kind, err error) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "kind: %s", kind)
	for e := err; e != nil; {
		fmt.Fprintf(&sb, "\n%T: %s", e, e)
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return sb.String()
}
