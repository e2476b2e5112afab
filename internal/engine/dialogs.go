package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DialogKind names the four javascript dialog flavors.
type DialogKind string

const (
	DialogAlert        DialogKind = "alert"
	DialogConfirm      DialogKind = "confirm"
	DialogPrompt       DialogKind = "prompt"
	DialogBeforeUnload DialogKind = "beforeunload"
)

// DialogRequest describes one open dialog. It lives for exactly one handler
// invocation.
type DialogRequest struct {
	Kind          DialogKind
	Message       string
	DefaultPrompt string
}

// DialogDecision is the handler's answer. PromptText is only meaningful for
// prompt dialogs.
type DialogDecision struct {
	Accept     bool
	PromptText string
}

// DialogHandler decides what to do with an open dialog. Handlers must
// return; a handler that never settles leaves the dialog open and the page
// blocked, which the engine cannot detect on the caller's behalf.
type DialogHandler func(DialogRequest) DialogDecision

// DefaultDialogHandler accepts every dialog with an empty prompt answer.
// It is the fallback whenever no handler is installed.
var DefaultDialogHandler DialogHandler = func(DialogRequest) DialogDecision {
	return DialogDecision{Accept: true}
}

const dialogResolveTimeout = 10 * time.Second

// armDialogs subscribes the dialog mediator on a session. The subscription
// happens once per session; getHandler is consulted on every event, so the
// installed handler can be swapped at any time without re-arming. A nil
// handler falls back to DefaultDialogHandler, which guarantees every dialog
// is eventually resolved.
func armDialogs(ctx context.Context, s *session, getHandler func() DialogHandler) {
	s.proto.OnDialog(func(req DialogRequest) {
		handler := getHandler()
		if handler == nil {
			handler = DefaultDialogHandler
		}
		decision := handler(req)

		s.log.Debug("resolving javascript dialog",
			zap.String("kind", string(req.Kind)),
			zap.String("message", req.Message),
			zap.Bool("accept", decision.Accept))

		rctx, cancel := context.WithTimeout(ctx, dialogResolveTimeout)
		defer cancel()
		if err := s.proto.ResolveDialog(rctx, decision.Accept, decision.PromptText); err != nil {
			s.log.Warn("failed to resolve javascript dialog",
				zap.String("kind", string(req.Kind)), zap.Error(err))
		}
	})
}
