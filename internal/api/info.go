package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/docrender/docrender/internal/apperr"
	"github.com/docrender/docrender/internal/catalog"
	"github.com/docrender/docrender/internal/web/middleware"
	"github.com/docrender/docrender/internal/web/profiling"
	"github.com/docrender/docrender/internal/web/response"
)

// TemplatesResponse lists the catalog's templates in walk order
type TemplatesResponse struct {
	Templates  []catalog.TemplateInfo `json:"templates"`
	Duplicates map[string][]string    `json:"duplicates,omitempty"`
}

// HealthResponse reports liveness and catalog size
type HealthResponse struct {
	Status    string          `json:"status"`
	Uptime    string          `json:"uptime"`
	Templates int             `json:"templates"`
	Assets    int             `json:"assets"`
	Fonts     int             `json:"fonts"`
	Families  []string        `json:"font_families"`
	InFlight  int64           `json:"in_flight"`
	Runtime   profiling.Stats `json:"runtime"`
}

func (a *API) listTemplates(w http.ResponseWriter, r *http.Request) {
	cat := a.renderer.Catalog()
	a.writeJSON(w, r, TemplatesResponse{
		Templates:  cat.Templates(),
		Duplicates: cat.Duplicates(),
	})
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	cat := a.renderer.Catalog()
	stats := cat.Stats()
	a.writeJSON(w, r, HealthResponse{
		Status:    "ok",
		Uptime:    a.clock().Sub(a.started).Truncate(time.Second).String(),
		Templates: stats.Templates,
		Assets:    stats.Assets,
		Fonts:     stats.Fonts,
		Families:  cat.Families(),
		InFlight:  a.renderer.Metrics().Snapshot().InFlight,
		Runtime:   profiling.RuntimeStats(),
	})
}

func (a *API) metrics(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, r, a.renderer.Metrics().Snapshot())
}

func (a *API) openAPI(w http.ResponseWriter, r *http.Request) {
	doc, err := OpenAPIDocument()
	if err != nil {
		response.RenderAppError(w, middleware.LoggerFrom(r.Context(), a.logger),
			apperr.New(apperr.KindInternal, "api.openapi", "", err))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

// apiDocs serves a Swagger UI page over the OpenAPI document
func (a *API) apiDocs(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(swaggerPage)
}

func (a *API) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	if err := response.RenderJSON(w, http.StatusOK, v); err != nil {
		middleware.LoggerFrom(r.Context(), a.logger).Warn("failed to write response", zap.Error(err))
	}
}
