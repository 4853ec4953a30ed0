package connect

import (
	"context"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19deck/internal/app/keymap"
	"github.com/osa030/19deck/internal/app/loader"
	"github.com/osa030/19deck/internal/app/playback"
	"github.com/osa030/19deck/internal/app/source"
	"github.com/osa030/19deck/internal/domain/collection"
)

// toConnectError maps domain errors to Connect codes.
func toConnectError(procedure string, err error) error {
	var code connect.Code
	switch {
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	case errors.Is(err, collection.ErrInvalidRef),
		errors.Is(err, playback.ErrIndexOutOfRange),
		errors.Is(err, keymap.ErrUnknownKey):
		code = connect.CodeInvalidArgument
	case errors.Is(err, playback.ErrTrackNotFound),
		errors.Is(err, source.ErrNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, loader.ErrAlreadyLoading):
		code = connect.CodeAlreadyExists
	case errors.Is(err, loader.ErrStale):
		code = connect.CodeAborted
	case errors.Is(err, loader.ErrNoPlayableTracks),
		errors.Is(err, source.ErrUnsupportedType):
		code = connect.CodeFailedPrecondition
	default:
		zlog.Error().Msgf("%s failed: %+v", procedure, err)
		return connect.NewError(connect.CodeInternal, errors.New("internal error"))
	}
	zlog.Debug().Msgf("%s rejected: code=%s error=%v", procedure, code, err)
	return connect.NewError(code, err)
}
