package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/docrender/docrender/internal/apperr"
	"github.com/docrender/docrender/internal/archive"
	"github.com/docrender/docrender/internal/batch"
	"github.com/docrender/docrender/internal/web/middleware"
	"github.com/docrender/docrender/internal/web/response"
)

// renderBatch renders every requested item and streams the PDFs as one ZIP.
// Unknown templates are rejected before any byte of the archive is sent.
func (a *API) renderBatch(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFrom(r.Context(), a.logger)

	var items []batch.Item
	dec := json.NewDecoder(a.limitBody(w, r))
	if err := dec.Decode(&items); err != nil {
		response.RenderAppError(w, logger, bodyError("api.decode_batch", err))
		return
	}
	if err := a.batches.Validate(items); err != nil {
		response.RenderAppError(w, logger, err)
		return
	}

	streamer, err := response.NewStreamer(w)
	if err != nil {
		response.RenderAppError(w, logger, apperr.New(apperr.KindInternal, "api.stream", "", err))
		return
	}

	logger.Info("batch requested", zap.Int("count", len(items)))

	pr, pw := archive.NewPipe(a.cfg.ArchiveBufferSize)
	zw := archive.NewZipWriter(pw,
		archive.WithClock(a.clock),
		archive.WithCompressionLevel(a.cfg.CompressionLevel))

	done := make(chan error, 1)
	go func() {
		_, err := a.batches.Run(r.Context(), items, zw)
		if err != nil {
			zw.Abort(err)
		}
		done <- err
	}()

	response.SetAttachment(w, "application/zip", BatchArchiveName)
	written, streamErr := streamer.StreamReader(pr)

	// unblocks the producer if the client went away mid-stream
	_ = pr.CloseWithError(archive.ErrConnectionClosed)
	runErr := <-done

	switch {
	case streamErr == nil:
		logger.Debug("batch streamed", zap.Int64("bytes", written))
	case errors.Is(streamErr, response.ErrClientWrite):
		logger.Warn("client closed connection during batch",
			zap.Int64("bytes", written), zap.Error(streamErr))
	default:
		logger.Error("batch stream failed",
			zap.Int64("bytes", written), zap.NamedError("cause", runErr), zap.Error(streamErr))
		// the status line is gone; dropping the connection keeps the truncated archive from looking complete
		panic(http.ErrAbortHandler)
	}
}
