package handlers

import (
	"net/http"
	"slices"
	"time"

	"commenta.app/cloud/internal/auth"
	"commenta.app/cloud/internal/email"
	"commenta.app/cloud/internal/licensing"
	"commenta.app/cloud/internal/logger"
	"commenta.app/cloud/internal/objectstore"
	"commenta.app/cloud/internal/ratelimit"
	"commenta.app/cloud/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
)

type Options struct {
	Version             string
	AppURL              string
	StripeSecretKey     string
	StripeWebhookSecret string
	StripePriceIDPro    string
	AllowedOrigins      []string
}

// Deps are the clients the server is built from. They are created once at
// startup and shared by every request.
type Deps struct {
	Store   storage.Storage
	Auth    *auth.Verifier
	Mailer  email.Mailer
	Objects *objectstore.Client
	Limiter ratelimit.RateLimit
}

type Server struct {
	Router    chi.Router
	Storage   storage.Storage
	Validator *licensing.Validator
	Auth      *auth.Verifier
	Mailer    email.Mailer
	Objects   *objectstore.Client

	CreateCheckoutSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)

	opts      Options
	limiter   ratelimit.RateLimit
	validate  *validator.Validate
	sanitizer *bluemonday.Policy
	now       func() time.Time
}

func NewServer(opts Options, deps Deps) *Server {
	if deps.Mailer == nil {
		deps.Mailer = email.NoopMailer{}
	}
	if opts.StripeSecretKey != "" {
		stripe.Key = opts.StripeSecretKey
	}

	s := &Server{
		Router:                chi.NewRouter(),
		Storage:               deps.Store,
		Validator:             licensing.NewValidator(deps.Store),
		Auth:                  deps.Auth,
		Mailer:                deps.Mailer,
		Objects:               deps.Objects,
		CreateCheckoutSession: stripesession.New,
		opts:                  opts,
		limiter:               deps.Limiter,
		validate:              validator.New(validator.WithRequiredStructEnabled()),
		sanitizer:             bluemonday.UGCPolicy(),
		now:                   time.Now,
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.Router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	origins := s.allowedOrigins()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: !slices.Contains(origins, "*"),
		MaxAge:           300,
	}))

	r.Get("/health", s.Health)
	r.Handle("/metrics", promhttp.Handler())

	validate := ratelimit.Middleware(s.limiter, s.validateRateLimited)
	r.With(validate).Post("/validate-license", s.ValidateLicense)

	r.Route("/api", func(r chi.Router) {
		r.With(validate).Post("/validate-license", s.ValidateLicense)
		r.Post("/stripe/webhook", s.StripeWebhook)

		r.Get("/changelog/latest", s.LatestChangelog)
		r.Get("/changelog/{version}", s.Changelog)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)

			r.Get("/me", s.Me)
			r.Get("/me/sites", s.MySites)
			r.Get("/me/license", s.MyLicense)
			r.Post("/stripe/checkout", s.Checkout)

			r.Route("/support/tickets", func(r chi.Router) {
				r.Use(s.requirePro)
				r.Get("/", s.ListMyTickets)
				r.Post("/", s.CreateTicket)
				r.Get("/{id}", s.GetMyTicket)
				r.Post("/{id}/messages", s.ReplyToMyTicket)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireUser, s.requireAdmin)

			r.Get("/me", s.AdminMe)
			r.Get("/stats", s.AdminStats)
			r.Get("/users", s.AdminUsers)
			r.Get("/sites", s.AdminSites)
			r.Get("/payments", s.AdminPayments)

			r.Get("/support", s.AdminListTickets)
			r.Get("/support/{id}", s.AdminGetTicket)
			r.Patch("/support/{id}", s.AdminUpdateTicket)
			r.Post("/support/{id}/messages", s.AdminReplyToTicket)

			r.Get("/versions", s.AdminListVersions)
			r.Post("/versions", s.AdminCreateVersion)
			r.Post("/versions/upload", s.AdminUploadRelease)
			r.Patch("/versions/{id}", s.AdminUpdateVersion)
			r.Delete("/versions/{id}", s.AdminDeleteVersion)
		})
	})
}

// allowedOrigins falls back to any origin only when nothing is configured;
// credentials are never allowed for the wildcard.
func (s *Server) allowedOrigins() []string {
	if len(s.opts.AllowedOrigins) > 0 {
		return s.opts.AllowedOrigins
	}
	if s.opts.AppURL != "" {
		return []string{s.opts.AppURL}
	}
	return []string{"*"}
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if s.Storage == nil || s.Storage.Ping(r.Context()) != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, HealthResponse{
		Status:    status,
		Version:   s.opts.Version,
		Timestamp: s.now().UTC(),
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Debug("HTTP request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
			"remote_addr": ratelimit.ClientIP(r),
		})
	})
}
