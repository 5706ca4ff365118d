package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/docrender/docrender/internal/apperr"
	"github.com/docrender/docrender/internal/web/middleware"
	"github.com/docrender/docrender/internal/web/response"
	"github.com/docrender/docrender/internal/web/router"
)

// renderSingle renders one template and answers with the PDF as an attachment
func (a *API) renderSingle(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFrom(r.Context(), a.logger)
	template := router.URLParam(r, "template")
	fileName := router.URLParam(r, "file_name")

	payload, err := a.readPayload(w, r)
	if err != nil {
		response.RenderAppError(w, logger, err)
		return
	}

	logger.Info("render requested", zap.String("template", template), zap.String("file_name", fileName))
	pdf, err := a.renderer.Render(r.Context(), template, payload)
	if err != nil {
		response.RenderAppError(w, logger, err)
		return
	}

	if err := response.Attachment(w, r, "application/pdf", fileName, pdf); err != nil {
		logger.Warn("failed to write pdf", zap.String("template", template), zap.Error(err))
	}
}

// readPayload reads the request body as one JSON value. An empty body is null.
func (a *API) readPayload(w http.ResponseWriter, r *http.Request) (json.RawMessage, error) {
	body, err := io.ReadAll(a.limitBody(w, r))
	if err != nil {
		return nil, bodyError("api.read_payload", err)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		return nil, apperr.New(apperr.KindInputSerialization, "api.read_payload", "", errors.New("request body is not valid JSON"))
	}
	return json.RawMessage(body), nil
}

func (a *API) limitBody(w http.ResponseWriter, r *http.Request) io.Reader {
	if a.cfg.MaxBodyBytes <= 0 {
		return r.Body
	}
	return http.MaxBytesReader(w, r.Body, a.cfg.MaxBodyBytes)
}

// bodyError classifies a failure while reading or decoding a request body
func bodyError(op string, err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperr.New(apperr.KindPayloadTooLarge, op, "", err)
	}
	return apperr.New(apperr.KindInputSerialization, op, "", err)
}
