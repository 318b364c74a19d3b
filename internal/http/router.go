package http

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/gorilla/mux"
)

//go:embed static
var staticFiles embed.FS

func NewRouter(h *Handler) http.Handler {
	r := mux.NewRouter()
	r.Use(requestLogger(h.logger))

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/ask", h.Ask).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", h.Status).Methods(http.MethodGet)
	api.HandleFunc("/examples", h.Examples).Methods(http.MethodGet)
	api.HandleFunc("/initialize", h.Initialize).Methods(http.MethodPost)

	static := mustSub(staticFiles, "static")
	r.PathPrefix("/").Handler(http.FileServer(http.FS(static))).Methods(http.MethodGet)

	return corsMiddleware(r)
}

// mustSub só falha se o diretório embutido não existir, o que é erro de build.
func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(fmt.Sprintf("static files: %v", err))
	}
	return sub
}
