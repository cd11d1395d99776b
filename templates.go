package main

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type pageData struct {
	AppName   string
	CSRFToken string
	Errors    []string
	Success   bool
	Email     string
	UserEmail string
	Profile   *CustomerProfile
}

// renderPage buffers template output so a render failure can still produce
// a clean 500 instead of a half-written page.
func (a *App) renderPage(w http.ResponseWriter, name string, status int, data *pageData) {
	data.AppName = a.cfg.AppName
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		a.log.Error("template render failed", zap.String("template", name), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (a *App) serverError(w http.ResponseWriter, r *http.Request, err error) {
	a.log.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	a.renderPage(w, "error.html", http.StatusInternalServerError, &pageData{})
}
