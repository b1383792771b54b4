package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// requestTimeout — общий дедлайн обработки одного HTTP-запроса.
const requestTimeout = 15 * time.Second

// Registrar регистрирует свои маршруты на роутере.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter собирает chi-роутер с базовым набором middleware
// и регистрирует на нём переданные обработчики.
func NewRouter(handlers ...Registrar) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	for _, h := range handlers {
		h.Register(r)
	}
	return r
}
