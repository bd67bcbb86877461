package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/korle-health/clinic-platform/internal/booking"
	httpmiddleware "github.com/korle-health/clinic-platform/internal/http/middleware"
	"github.com/korle-health/clinic-platform/internal/payments"
	"github.com/korle-health/clinic-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	PaymentsHandler *payments.Handler
	BookingHandler  *booking.Handler
	AdminReports    *payments.AdminReportsHandler
	MetricsHandler  http.Handler

	JWTSecret          string
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (health checks, metrics)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Patient-facing API, JWT protected
	r.Group(func(api chi.Router) {
		api.Use(httpmiddleware.Auth(cfg.JWTSecret))

		if cfg.PaymentsHandler != nil {
			api.Route("/payments", func(r chi.Router) {
				r.Post("/", cfg.PaymentsHandler.CreatePayment)
				r.Get("/{paymentID}", cfg.PaymentsHandler.GetPayment)
				r.Get("/{paymentID}/settlement", cfg.PaymentsHandler.AwaitSettlement)
			})
		}

		if cfg.BookingHandler != nil {
			api.Route("/bookings", func(r chi.Router) {
				r.Post("/", cfg.BookingHandler.CreateBooking)
				r.Get("/", cfg.BookingHandler.ListBookings)
				r.Get("/{bookingID}", cfg.BookingHandler.GetBooking)
				r.Patch("/{bookingID}", cfg.BookingHandler.UpdateBooking)
			})
		}
	})

	// Admin routes (JWT + admin role)
	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.Auth(cfg.JWTSecret))
		admin.Use(httpmiddleware.RequireAdmin)

		if cfg.PaymentsHandler != nil {
			admin.Post("/payments/{paymentID}/refund", cfg.PaymentsHandler.RefundPayment)
		}
		if cfg.AdminReports != nil {
			admin.Get("/reports/payments", cfg.AdminReports.ListPayments)
			admin.Get("/reports/payments/summary", cfg.AdminReports.Summary)
		}
	})

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
