package routes

import (
	"log/slog"
	"net/http"

	"tasklog/app/controllers"
	"tasklog/app/services"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
)

// NewRouter returns a router with request logging and all routes registered.
func NewRouter(logger *slog.Logger, taskController *controllers.TaskController, pageController *controllers.PageController, events http.Handler) *mux.Router {
	router := mux.NewRouter()
	router.Use(Logging(logger))
	RegisterRoutes(router, taskController, pageController, events)
	return router
}

// RegisterRoutes sets up all routes for the application. events serves the
// WebSocket invalidation stream and may be nil.
func RegisterRoutes(router *mux.Router, taskController *controllers.TaskController, pageController *controllers.PageController, events http.Handler) {
	router.Use(Origin)

	router.HandleFunc("/tasks", taskController.GetTasks).Methods(http.MethodGet)
	router.HandleFunc("/tasks", taskController.CreateTask).Methods(http.MethodPost)
	router.HandleFunc("/tasks/{taskID}", taskController.GetTaskByID).Methods(http.MethodGet)
	router.HandleFunc("/tasks/{taskID}", taskController.UpdateTask).Methods(http.MethodPatch, http.MethodPut)
	router.HandleFunc("/tasks/{taskID}", taskController.DeleteTask).Methods(http.MethodDelete)

	router.HandleFunc("/", pageController.Index).Methods(http.MethodGet)
	router.HandleFunc("/health", pageController.Health).Methods(http.MethodGet)
	if events != nil {
		router.Handle("/ws", events).Methods(http.MethodGet)
	}
}

// Logging logs every request with its status and duration.
func Logging(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)
			logger.Info("handled", "method", r.Method, "url", r.URL, "duration", m.Duration, "status", m.Code)
		})
	}
}

// Origin attaches the requesting client's id to the request context.
func Origin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get(services.OriginHeader); origin != "" {
			r = r.WithContext(services.WithOrigin(r.Context(), origin))
		}
		next.ServeHTTP(w, r)
	})
}
