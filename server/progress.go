package server

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/corymhall/textlsp/lsp"
	"github.com/corymhall/textlsp/xcontext"
	"golang.org/x/exp/rand"
)

// A Tracker reports the progress of a long-running operation to an LSP client.
type Tracker struct {
	client lsp.Client
	logger *slog.Logger

	mu                       sync.Mutex
	supportsWorkDoneProgress bool
	inProgress               map[lsp.ProgressToken]*WorkDone
}

// NewTracker returns a new Tracker that reports progress to the
// specified client.
func NewTracker(client lsp.Client, logger *slog.Logger) *Tracker {
	return &Tracker{
		client:     client,
		logger:     logger,
		inProgress: make(map[lsp.ProgressToken]*WorkDone),
	}
}

// SetSupportsWorkDoneProgress sets whether the client supports "work done"
// progress reporting. Without it the tracker reports nothing.
func (t *Tracker) SetSupportsWorkDoneProgress(b bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.supportsWorkDoneProgress = b
}

func (t *Tracker) supported() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.supportsWorkDoneProgress
}

// Active returns the number of progress reports that have begun but not ended.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inProgress)
}

// WorkDone represents a unit of work that is reported to the client via the
// progress API.
type WorkDone struct {
	client lsp.Client
	logger *slog.Logger
	// If token is nil, nothing is reported.
	token lsp.ProgressToken
	// err is set if progress reporting is broken for some reason (for example,
	// if there was an initial error creating a token).
	err error

	cleanup func()
}

// Start begins a progress report. If token is nil a new token is created on
// the client; a token supplied by the client in the request is used as is.
func (t *Tracker) Start(ctx context.Context, title, message string, token lsp.ProgressToken) *WorkDone {
	ctx = xcontext.Detach(ctx)
	wd := &WorkDone{
		client: t.client,
		logger: t.logger,
	}
	if !t.supported() {
		return wd
	}

	if token == nil {
		token = strconv.FormatInt(rand.Int63(), 10)
		t.logger.Debug("creating progress token", slog.Any("token", token))
		err := wd.client.WorkDoneProgressCreate(ctx, &lsp.WorkDoneProgressCreateParams{
			Token: token,
		})
		if err != nil {
			t.logger.Warn("error creating progress token", slog.Any("error", err))
			wd.err = err
			return wd
		}
	}
	wd.token = token

	t.mu.Lock()
	t.inProgress[token] = wd
	t.mu.Unlock()
	wd.cleanup = func() {
		t.mu.Lock()
		delete(t.inProgress, token)
		t.mu.Unlock()
	}

	t.logger.Debug("starting progress", slog.Any("token", token))
	err := wd.client.ProgressBegin(ctx, &lsp.WorkDoneProgressBeginParams{
		Token: token,
		Value: &lsp.WorkDoneProgressBeginValue{
			Kind:    lsp.Begin,
			Title:   title,
			Message: message,
		},
	})
	if err != nil {
		t.logger.Warn("error starting progress", slog.Any("error", err))
	}
	return wd
}

// End reports a workdone completion back to the client.
func (wd *WorkDone) End(ctx context.Context, message string) {
	if wd == nil {
		return
	}
	ctx = xcontext.Detach(ctx) // progress messages should not be cancelled
	var err error
	switch {
	case wd.err != nil:
		// There is a prior error.
	case wd.token == nil:
		// Progress is not supported by the client.
	default:
		wd.logger.Debug("ending progress", slog.Any("token", wd.token))
		err = wd.client.ProgressEnd(ctx, &lsp.WorkDoneProgressEndParams{
			Token: wd.token,
			Value: &lsp.WorkDoneProgressEndValue{
				Kind:    lsp.End,
				Message: message,
			},
		})
	}
	if err != nil {
		wd.logger.Warn("error ending progress", slog.Any("error", err))
	}
	if wd.cleanup != nil {
		wd.cleanup()
	}
}
