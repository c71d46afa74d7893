package llmclient

import (
	"context"
	"time"

	"github.com/elikoga/textsynth/internal/core"
)

// RequestInfo describes a call as it starts.
type RequestInfo struct {
	Operation string
	Method    string
	Endpoint  string
	Stream    bool
	RequestID string
}

// ResponseInfo describes a finished call. For streams it is reported when the
// body is closed, so Duration covers the whole generation.
type ResponseInfo struct {
	RequestInfo
	StatusCode int
	Duration   time.Duration
	// ErrorType is empty on success
	ErrorType core.ErrorType
	Err       error
}

// Hooks observe calls. Both funcs are optional. OnRequestStart may return a
// derived context that is passed to OnRequestEnd.
type Hooks struct {
	OnRequestStart func(ctx context.Context, info RequestInfo) context.Context
	OnRequestEnd   func(ctx context.Context, info ResponseInfo)
}

func (h Hooks) start(ctx context.Context, info RequestInfo) context.Context {
	if h.OnRequestStart == nil {
		return ctx
	}
	if next := h.OnRequestStart(ctx, info); next != nil {
		return next
	}
	return ctx
}

func (h Hooks) end(ctx context.Context, info ResponseInfo) {
	if h.OnRequestEnd != nil {
		h.OnRequestEnd(ctx, info)
	}
}

// ChainHooks runs several hook sets in order.
func ChainHooks(hooks ...Hooks) Hooks {
	return Hooks{
		OnRequestStart: func(ctx context.Context, info RequestInfo) context.Context {
			for _, h := range hooks {
				ctx = h.start(ctx, info)
			}
			return ctx
		},
		OnRequestEnd: func(ctx context.Context, info ResponseInfo) {
			for _, h := range hooks {
				h.end(ctx, info)
			}
		},
	}
}
