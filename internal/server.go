package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/contactform/internal/config"
	"github.com/2beens/contactform/internal/db"
	"github.com/2beens/contactform/internal/messages"
	"github.com/2beens/contactform/internal/middleware"
	"github.com/2beens/contactform/internal/misc"
	"github.com/2beens/contactform/internal/supabase"
	"github.com/2beens/contactform/internal/telemetry/metrics"
	"github.com/2beens/contactform/internal/telemetry/tracing"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/multierr"
)

const serviceName = "contact-form-api"

type messagesStore interface {
	Insert(ctx context.Context, name, email, message string) (*messages.Message, error)
	ListAll(ctx context.Context) ([]messages.Message, error)
	Probe(ctx context.Context) error
}

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config  *config.Config
	secrets *config.Secrets
	dbPool  *pgxpool.Pool
	store   messagesStore

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config      *config.Config
	Secrets     *config.Secrets
	VersionInfo string
	// HTTPClient is used for the supabase REST calls; a traced client is built if nil.
	HTTPClient *http.Client
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	if params.Config == nil {
		return nil, errors.New("config not set")
	}
	secrets := params.Secrets
	if secrets == nil {
		secrets = &config.Secrets{}
	}

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(secrets.HoneycombEnabled, serviceName)
	if err != nil {
		return nil, fmt.Errorf("honeycomb setup: %w", err)
	}

	s := &Server{
		versionInfo:  params.VersionInfo,
		config:       params.Config,
		secrets:      secrets,
		otelShutdown: otelShutdown,
	}

	var collectors []prometheus.Collector
	switch params.Config.StoreDriver {
	case config.StoreDriverPostgres:
		s.dbPool, err = s.postgresSetup(ctx)
		if err != nil {
			log.Errorf("postgres setup, message requests will fail until DATABASE_URL is fixed: %s", err)
			s.store = messages.NewUnconfiguredPsqlRepo(err)
			break
		}
		if s.dbPool != nil {
			collectors = append(collectors, pgxpoolprometheus.NewCollector(
				s.dbPool,
				map[string]string{"db_name": s.dbPool.Config().ConnConfig.Database},
			))
		}
		s.store = messages.NewPsqlRepo(s.dbPool, params.Config.MessagesTable, params.Config.StoreTimeout())
	default:
		s.store = messages.NewSupabaseRepo(supabase.ClientParams{
			URL:        secrets.SupabaseURL,
			Key:        secrets.SupabaseKey,
			HTTPClient: params.HTTPClient,
			Timeout:    params.Config.StoreTimeout(),
		}, params.Config.MessagesTable)
		if secrets.SupabaseURL == "" || secrets.SupabaseKey == "" {
			log.Warnln("SUPABASE_URL / SUPABASE_KEY not set, message requests will fail until they are")
		}
	}

	s.promRegistry = metrics.SetupPrometheus(collectors...)
	s.metricsManager = metrics.NewManager("contactform", "api", s.promRegistry)
	s.metricsManager.GaugeLifeSignal.Set(0)

	return s, nil
}

// postgresSetup returns a nil pool when DATABASE_URL is missing, and an
// error when it cannot be used. Neither stops the process: requests report
// a configuration error instead.
func (s *Server) postgresSetup(ctx context.Context) (*pgxpool.Pool, error) {
	if s.secrets.DatabaseURL == "" {
		log.Warnln("DATABASE_URL not set, message requests will fail until it is")
		return nil, nil
	}

	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		ConnString:     s.secrets.DatabaseURL,
		TracingEnabled: s.secrets.HoneycombEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Warnf("failed to ping db: %s", err)
	}

	return dbPool, nil
}

// Handler builds the API router with the full middleware chain. Both the
// long running service and the serverless adapter serve through it.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("contact-form-router"))

	miscHandler := misc.NewHandler(
		s.store,
		s.secrets.Credentials(s.config.StoreDriver),
		s.versionInfo,
	)
	miscHandler.SetupRoutes(r)

	messagesHandler := messages.NewHandler(s.store, s.metricsManager)
	messagesHandler.SetupRoutes(r)

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.DrainAndCloseRequest(middleware.DefaultMaxBodyBytes))

	// outermost, so preflights and 404/405 answers carry the CORS headers too
	return middleware.Cors(s.config.CorsAllowedOrigins)(r)
}

func (s *Server) MetricsManager() *metrics.Manager {
	return s.metricsManager
}

func (s *Server) Serve(ctx context.Context, host string, port int) {
	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.InstrumentMetricHandler(
		s.promRegistry,
		promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}),
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() error {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	var shutdownErr error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			shutdownErr = multierr.Append(shutdownErr, fmt.Errorf("shutdown http server: %w", err))
		}
		log.Warnln("server shut down")
	}

	if s.metricsHttpServer != nil {
		if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
			shutdownErr = multierr.Append(shutdownErr, fmt.Errorf("shutdown metrics server: %w", err))
		}
		log.Warnln("metrics server shut down")
	}

	return shutdownErr
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed, http.StateHijacked:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
