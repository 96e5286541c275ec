package server

import (
	"net/http"
)

// Handler builds the HTTP surface: session API plus the websocket event
// stream.
func Handler(hub *Hub, ctrl SessionController, generator QuestionGenerator, uploader ReportUploader) http.Handler {
	mux := http.NewServeMux()

	registerWSRoute(mux, hub, ctrl)
	registerAPIRoutes(mux, ctrl, generator, uploader)

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"service": "intervue"})
	})

	return mux
}
