package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/mqtt-inspect/internal/audit"
	"github.com/nerrad567/mqtt-inspect/internal/history"
	"github.com/nerrad567/mqtt-inspect/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-inspect/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt-inspect/internal/rule"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Publisher sends a message to the broker.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// BrokerStatus reports the broker connection state. mqtt.Client implements it.
type BrokerStatus interface {
	IsConnected() bool
	SubscriptionCount() int
}

// RuleStore persists named rules. rule.SQLiteRepository implements it.
type RuleStore interface {
	Save(ctx context.Context, name, query string, overwrite bool) (*rule.Saved, error)
	Get(ctx context.Context, name string) (*rule.Saved, error)
	List(ctx context.Context) ([]rule.Saved, error)
	Delete(ctx context.Context, name string) error
}

// Journal records and lists activity. audit.SQLiteRepository implements it.
type Journal interface {
	Record(ctx context.Context, e *audit.Entry) error
	List(ctx context.Context, filter audit.Filter) ([]audit.Entry, error)
}

// Deps holds the dependencies of the API server. Store, Engine and Logger
// are required; the rest switch off the routes that need them when nil.
type Deps struct {
	Config    config.APIConfig
	Logger    *logging.Logger
	Store     *history.Store
	Engine    *rule.Engine
	Rules     RuleStore
	Journal   Journal
	Publisher Publisher
	Broker    BrokerStatus
	DB        *sql.DB // connection pool stats for /metrics
	Version   string
}

// Server is the HTTP API server.
//
// It is created with New, started with Start and stopped with Close.
// Observe may be called from any goroutine once Start has returned.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	store     *history.Store
	engine    *rule.Engine
	rules     RuleStore
	journal   Journal
	publisher Publisher
	broker    BrokerStatus
	db        *sql.DB
	version   string
	startTime time.Time

	hub     *Hub
	tickets *ticketStore

	mu     sync.Mutex
	server *http.Server
	addr   string
	cancel context.CancelFunc // stops the hub and ticket cleanup
}

// New creates an API server. It does not listen until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("history store is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("rule engine is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		store:     deps.Store,
		engine:    deps.Engine,
		rules:     deps.Rules,
		journal:   deps.Journal,
		publisher: deps.Publisher,
		broker:    deps.Broker,
		db:        deps.DB,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       NewHub(deps.Config.WebSocket, deps.Logger),
		tickets:   newTicketStore(),
	}, nil
}

// authEnabled reports whether requests need a bearer token.
func (s *Server) authEnabled() bool {
	return s.cfg.Auth.JWTSecret != ""
}

// Start binds the listener and serves in the background until Close.
// Port 0 picks a free port; Addr reports the bound address.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	// Internal context so Close can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)

	s.addr = ln.Addr().String()
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", s.addr, "auth", s.authEnabled())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Close gracefully shuts down the server, waiting up to 10 seconds for
// in-flight requests. WebSocket clients are disconnected.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	cancel := s.cancel
	s.server = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// journalEntry records an API change. Failures are logged only.
func (s *Server) journalEntry(ctx context.Context, action, subject, detail string) {
	if s.journal == nil {
		return
	}
	e := &audit.Entry{Action: action, Subject: subject, Detail: detail, Source: audit.SourceAPI}
	if err := s.journal.Record(ctx, e); err != nil {
		s.logger.Warn("recording activity failed", "action", action, "error", err)
	}
}
