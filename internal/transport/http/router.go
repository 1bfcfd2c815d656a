package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"custoda/internal/audit"
	"custoda/internal/captoken"
	"custoda/internal/document"
	"custoda/internal/jwttoken"
	"custoda/internal/owner"
	"custoda/internal/permission"
	"custoda/internal/platform/middleware"
	"custoda/internal/record"
	"custoda/internal/syncer"
)

// Handler is the thin HTTP layer. It delegates to domain services without
// embedding business logic so transport concerns remain isolated.
type Handler struct {
	logger      *slog.Logger
	jwt         *jwttoken.JWTService
	owners      *owner.Registry
	records     *record.Service
	permissions *permission.Service
	documents   *document.Service
	tokens      *captoken.Service
	syncer      *syncer.Service
	auditTrail  audit.Store

	sessionTTL time.Duration
}

func NewHandler(
	logger *slog.Logger,
	jwt *jwttoken.JWTService,
	owners *owner.Registry,
	records *record.Service,
	permissions *permission.Service,
	documents *document.Service,
	tokens *captoken.Service,
	sync *syncer.Service,
	auditTrail audit.Store,
) *Handler {
	return &Handler{
		logger:      logger,
		jwt:         jwt,
		owners:      owners,
		records:     records,
		permissions: permissions,
		documents:   documents,
		tokens:      tokens,
		syncer:      sync,
		auditTrail:  auditTrail,
		sessionTTL:  time.Hour,
	}
}

// NewRouter wires all endpoints. Owner-scoped routes sit behind JWT auth;
// token validation is deliberately open, since bearers are not owners.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(h.logger))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Registration and token validation happen before any owner session
	// exists.
	r.Post("/owners", h.handleCreateOwner)
	r.Post("/tokens/validate", h.handleValidateToken)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwt, h.logger))

		r.Route("/owners/{ownerID}", func(r chi.Router) {
			r.Get("/", h.handleGetOwner)
			r.Patch("/", h.handleUpdateOwner)
			r.Delete("/", h.handleDeleteOwner)

			r.Post("/records", h.handleStoreRecord)
			r.Get("/records/{dataType}", h.handleListRecords)
			r.Delete("/records/{recordID}", h.handleDeleteRecord)

			r.Post("/permissions", h.handleGrantPermission)
			r.Get("/permissions", h.handleListPermissions)
			r.Post("/access-check", h.handleCheckAccess)

			r.Post("/consents", h.handleRequestConsent)
			r.Get("/consents", h.handleListConsents)

			r.Post("/documents", h.handleUploadDocument)
			r.Get("/documents", h.handleListDocuments)

			r.Post("/sync", h.handleSynchronize)
			r.Get("/integrity", h.handleValidateIntegrity)
			r.Get("/audit", h.handleListAudit)
		})

		r.Post("/permissions/{permissionID}/revoke", h.handleRevokePermission)
		r.Post("/consents/{consentID}/withdraw", h.handleWithdrawConsent)
		r.Post("/consents/{consentID}/renew", h.handleRenewConsent)

		r.Get("/documents/{documentID}/download", h.handleDownloadDocument)
		r.Post("/documents/{documentID}/share", h.handleShareDocument)
		r.Post("/documents/access/{accessID}/revoke", h.handleRevokeDocumentAccess)
		r.Post("/documents/{documentID}/tokens", h.handleIssueToken)
		r.Post("/tokens/{tokenID}/revoke", h.handleRevokeToken)
	})

	return r
}

// authorizedOwner returns the path owner ID after checking it matches the
// authenticated session. Cross-owner requests fail closed.
func (h *Handler) authorizedOwner(r *http.Request) (string, error) {
	pathOwner := chi.URLParam(r, "ownerID")
	if pathOwner == "" || pathOwner != sessionOwner(r) {
		return "", errForeignOwner
	}
	return pathOwner, nil
}

// sessionOwner is the owner ID the auth middleware put in the context.
func sessionOwner(r *http.Request) string {
	return middleware.GetOwnerID(r.Context())
}
