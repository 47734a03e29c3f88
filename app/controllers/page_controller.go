package controllers

import (
	"log/slog"
	"net/http"

	"tasklog/app/views"
)

// PageController serves the HTML records log and the health probe.
type PageController struct {
	Page    *views.RecordsPage
	Clients func() int
	Logger  *slog.Logger
}

// NewPageController creates a new PageController. clients reports the number
// of connected event subscribers and may be nil.
func NewPageController(page *views.RecordsPage, clients func() int, logger *slog.Logger) *PageController {
	if logger == nil {
		logger = slog.Default()
	}
	if clients == nil {
		clients = func() int { return 0 }
	}
	return &PageController{Page: page, Clients: clients, Logger: logger}
}

// Index handles GET /.
func (c *PageController) Index(w http.ResponseWriter, r *http.Request) {
	body, err := c.Page.Render(r.Context())
	if err != nil {
		c.Logger.Error("render records page", "err", err)
		http.Error(w, "failed to load records", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(body)
}

// Health handles GET /health.
func (c *PageController) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": c.Clients(),
	})
}
