package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/citypulse/weather-pipeline/internal/service"
)

// RouterServices holds the services needed by the HTTP router.
type RouterServices struct {
	Intake      *service.IntakeService
	Status      *service.StatusService
	Logger      *slog.Logger
	Environment string
	StartedAt   time.Time
}

// NewRouter builds the HTTP handler with all routes and middleware attached.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	startedAt := services.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	cities := &CityHandlers{Intake: services.Intake, Status: services.Status}
	health := &HealthHandlers{Environment: services.Environment, StartedAt: startedAt}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /cities", cities.CreateCity)
	mux.HandleFunc("GET /status/{cityId}", cities.GetStatus)
	mux.HandleFunc("GET /health", health.Health)

	var handler http.Handler = mux
	handler = CORS()(handler)
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	return handler
}
