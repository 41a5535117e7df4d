package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/corymhall/textlsp/analysis"
	"github.com/corymhall/textlsp/document"
	"github.com/corymhall/textlsp/lsp"
	"github.com/corymhall/textlsp/rpc"
	"github.com/corymhall/textlsp/workspace"
	"github.com/pulumi/pulumi/sdk/v3/go/common/util/contract"
)

const serverName = "textlsp"

type options struct {
	analyzer analysis.Analyzer
	resolver []workspace.ResolverOption
	exit     func(code int)
	version  string
}

// Option configures a server created by New.
type Option func(*options)

// WithAnalyzer replaces the analyzer run on every document change.
func WithAnalyzer(a analysis.Analyzer) Option {
	return func(o *options) { o.analyzer = a }
}

// WithResolverOptions configures the reference resolver.
func WithResolverOptions(opts ...workspace.ResolverOption) Option {
	return func(o *options) { o.resolver = append(o.resolver, opts...) }
}

// WithExit replaces os.Exit, called when the client sends exit.
func WithExit(exit func(code int)) Option {
	return func(o *options) { o.exit = exit }
}

// WithVersion sets the version reported in the initialize result.
func WithVersion(version string) Option {
	return func(o *options) { o.version = version }
}

// New creates an LSP server that sends its notifications to client.
func New(logger *slog.Logger, client lsp.Client, opts ...Option) lsp.Server {
	contract.Assertf(client != nil, "server requires a client")
	o := options{
		analyzer: analysis.Placeholder,
		exit:     os.Exit,
		version:  "dev",
	}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &server{
		logger:      logger,
		client:      client,
		exit:        o.exit,
		version:     o.version,
		store:       document.NewStore(),
		resolver:    workspace.NewResolver(o.resolver...),
		progress:    NewTracker(client, logger),
		diagnostics: newPublisher(client, o.analyzer, logger),
	}
	s.store.Subscribe(s.diagnostics.handle)
	return s
}

type serverState int

const (
	serverCreated      = serverState(iota)
	serverInitializing // set once the server has received "initialize" request
	serverInitialized  // set once the server has received "initialized" request
	serverShutDown
)

func (s serverState) String() string {
	switch s {
	case serverCreated:
		return "created"
	case serverInitializing:
		return "initializing"
	case serverInitialized:
		return "initialized"
	case serverShutDown:
		return "shutDown"
	}
	return fmt.Sprintf("(unknown state: %d)", int(s))
}

type server struct {
	logger  *slog.Logger
	client  lsp.Client
	exit    func(code int)
	version string

	stateMu sync.Mutex
	state   serverState

	// root is set from the initialize request and never changes afterwards.
	root     workspace.Root
	resolver *workspace.Resolver

	// store holds the open documents; diagnostics listens to its events.
	store       *document.Store
	diagnostics *publisher

	// progress is the progress tracker used to report progress
	// to the client.
	progress *Tracker
}

func (s *server) Logger() *slog.Logger {
	return s.logger
}

func (s *server) currentState() serverState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// checkNotShutDown returns an error once the server has been shut down.
// Before initialize, document and workspace methods are served: documents
// are tracked and workspace queries answer null until a root is known.
func (s *server) checkNotShutDown(method string) error {
	if s.currentState() == serverShutDown {
		return fmt.Errorf("%w: %s received after shutdown", rpc.ErrInvalidRequest, method)
	}
	return nil
}

// acceptNotification reports whether a notification for method should be
// processed. Notifications after shutdown are dropped.
func (s *server) acceptNotification(method string) bool {
	if err := s.checkNotShutDown(method); err != nil {
		s.logger.Warn("dropping notification", slog.String("method", method), slog.Any("reason", err))
		return false
	}
	return true
}

// Shutdown implements the 'shutdown' LSP handler. After it returns every
// request except exit is rejected.
func (s *server) Shutdown(ctx context.Context) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.state < serverInitializing {
		return fmt.Errorf("%w: shutdown", lsp.ErrServerNotInitialized)
	}
	if s.state != serverShutDown {
		s.logger.Info("shutting down", slog.Int("openDocuments", len(s.store.URIs())))
		s.state = serverShutDown
	}
	return nil
}

// Exit ends the process: with code 0 after a shutdown request, 1 otherwise.
func (s *server) Exit(ctx context.Context) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	code := 0
	if s.state != serverShutDown {
		code = 1
	}
	s.logger.Info("exiting", slog.Int("code", code))
	s.exit(code)
	return nil
}
