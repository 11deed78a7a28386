package server

import (
	"context"
	"errors"

	"connectrpc.com/connect"

	"tournament-engine/internal/apperr"
)

// connectCode prefers the engine's error kind; context errors only decide
// the code for errors the engine did not classify.
func connectCode(err error) connect.Code {
	kind := apperr.KindOf(err)
	if kind == "" {
		switch {
		case errors.Is(err, context.Canceled):
			return connect.CodeCanceled
		case errors.Is(err, context.DeadlineExceeded):
			return connect.CodeDeadlineExceeded
		}
	}

	switch kind {
	case apperr.KindValidation:
		return connect.CodeInvalidArgument
	case apperr.KindConflict:
		return connect.CodeFailedPrecondition
	case apperr.KindConcurrency:
		return connect.CodeAborted
	case apperr.KindExternalDependency:
		return connect.CodeUnavailable
	case apperr.KindIntegrity:
		return connect.CodeInternal
	case apperr.KindNotFound:
		return connect.CodeNotFound
	default:
		return connect.CodeInternal
	}
}

// toConnectError maps err onto a connect status and attaches the engine's
// error code as the "x-error-code" header.
func toConnectError(err error) error {
	cerr := connect.NewError(connectCode(err), err)
	if code := apperr.CodeOf(err); code != "" {
		cerr.Meta().Set("X-Error-Code", string(code))
	}
	return cerr
}
