package http

import (
	"context"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/jorgepsendziuk/pinovara/internal/anexo"
	"github.com/jorgepsendziuk/pinovara/internal/audit"
	"github.com/jorgepsendziuk/pinovara/internal/config"
	httpmiddleware "github.com/jorgepsendziuk/pinovara/internal/http/middleware"
	"github.com/jorgepsendziuk/pinovara/internal/metrics"
	"github.com/jorgepsendziuk/pinovara/internal/odksync"
	"github.com/jorgepsendziuk/pinovara/internal/organizacao"
	"github.com/jorgepsendziuk/pinovara/internal/rbac"
	"github.com/jorgepsendziuk/pinovara/internal/repo"
	"github.com/jorgepsendziuk/pinovara/internal/service"
)

type authService interface {
	Login(ctx context.Context, email, password string) (*service.LoginResult, error)
	Refresh(ctx context.Context, rawToken string) (*service.LoginResult, error)
	Logout(ctx context.Context, rawToken string) error
	Me(ctx context.Context, userID int64) (*service.Profile, error)
	UsuarioAtivo(ctx context.Context, userID int64) (bool, error)
}

type organizationService interface {
	List(ctx context.Context, v organizacao.Viewer, f organizacao.Filter) (organizacao.Page, error)
	Get(ctx context.Context, v organizacao.Viewer, id int64) (organizacao.Organizacao, error)
	Create(ctx context.Context, v organizacao.Viewer, in organizacao.Input) (organizacao.Organizacao, error)
	Update(ctx context.Context, v organizacao.Viewer, id int64, in organizacao.Input) (organizacao.Organizacao, organizacao.Organizacao, error)
	Delete(ctx context.Context, v organizacao.Viewer, id int64) (organizacao.Organizacao, error)
	CheckAccess(ctx context.Context, v organizacao.Viewer, id int64) error
}

type attachmentStore interface {
	List(ctx context.Context, tipo anexo.Tipo, orgID int64) ([]anexo.Anexo, error)
	Get(ctx context.Context, tipo anexo.Tipo, orgID, id int64) (anexo.Anexo, error)
	Create(ctx context.Context, in anexo.NewAnexo) (anexo.Anexo, error)
	Delete(ctx context.Context, tipo anexo.Tipo, orgID, id int64) (anexo.Anexo, error)
	Open(ctx context.Context, a anexo.Anexo) (io.ReadCloser, error)
}

type syncEngine interface {
	Reconcile(ctx context.Context, orgID int64, tipo anexo.Tipo) (odksync.Result, error)
	Preview(ctx context.Context, orgID int64, tipo anexo.Tipo) ([]odksync.PreviewItem, error)
	ReconcileAll(ctx context.Context, tipo anexo.Tipo) (odksync.BulkResult, error)
}

type userAdmin interface {
	ListUsers(ctx context.Context) ([]repo.UsuarioComRoles, error)
	GetUser(ctx context.Context, id int64) (repo.UsuarioComRoles, error)
	CreateUser(ctx context.Context, in service.CreateUserInput) (repo.Usuario, error)
	UpdateUser(ctx context.Context, id int64, in service.UpdateUserInput) (repo.Usuario, repo.Usuario, error)
	ListModules(ctx context.Context) ([]repo.Modulo, error)
	ListRoles(ctx context.Context, moduloID *int64) ([]repo.Role, error)
	AssignRole(ctx context.Context, userID, roleID int64) (repo.Role, error)
	RevokeRole(ctx context.Context, userID, roleID int64) error
}

type auditLogs interface {
	List(ctx context.Context, f audit.Filter) (audit.Page, error)
	Stats(ctx context.Context) (audit.Stats, error)
	Each(ctx context.Context, f audit.Filter, fn func(audit.Log) error) error
}

type auditRecorder interface {
	Record(ctx context.Context, e audit.Entry)
}

// Check é uma verificação de dependência usada em /ready.
type Check func(ctx context.Context) error

// Dependencies reúne os serviços que o roteador expõe.
type Dependencies struct {
	Sessions      httpmiddleware.SessionVerifier
	Auth          authService
	Organizations organizationService
	Attachments   attachmentStore
	Sync          syncEngine
	Users         userAdmin
	AuditLogs     auditLogs
	Audit         auditRecorder
	Metrics       *metrics.Metrics
	Checks        map[string]Check
}

// Handler concentra os endpoints da API.
type Handler struct {
	cfg         *config.Config
	auth        authService
	orgs        organizationService
	anexos      attachmentStore
	sync        syncEngine
	users       userAdmin
	auditLogs   auditLogs
	audit       auditRecorder
	checks      map[string]Check
	uploadLimit int64
	now         func() time.Time
}

// NewRouter devolve roteador configurado.
func NewRouter(cfg *config.Config, deps Dependencies) http.Handler {
	h := &Handler{
		cfg:         cfg,
		auth:        deps.Auth,
		orgs:        deps.Organizations,
		anexos:      deps.Attachments,
		sync:        deps.Sync,
		users:       deps.Users,
		auditLogs:   deps.AuditLogs,
		audit:       deps.Audit,
		checks:      deps.Checks,
		uploadLimit: cfg.Storage.UploadMaxBytes,
		now:         time.Now,
	}
	publicLimiter := httpmiddleware.NewRateLimiter(cfg.RateLimitPublic.RequestsPerSecond, cfg.RateLimitPublic.Burst)
	authLimiter := httpmiddleware.NewRateLimiter(cfg.RateLimitAuth.RequestsPerSecond, cfg.RateLimitAuth.Burst)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(httpmiddleware.Logging)
	r.Use(httpmiddleware.Recover)
	r.Use(httpmiddleware.CORS(cfg.AllowOrigins))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Instrument)
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)

	r.Group(func(public chi.Router) {
		public.Use(httpmiddleware.IPRateLimit(publicLimiter))
		public.Route("/auth", func(a chi.Router) {
			a.Post("/login", h.Login)
			a.Post("/refresh", h.Refresh)
			a.Post("/logout", h.Logout)
		})
	})

	r.Group(func(private chi.Router) {
		private.Use(httpmiddleware.Authenticate(deps.Sessions))
		private.Use(httpmiddleware.UserRateLimit(authLimiter))

		private.Get("/auth/me", h.Me)

		private.Route("/organizations", func(o chi.Router) {
			o.Use(httpmiddleware.RequireRole(rbac.ModuloOrganizacoes, ""))
			writable := httpmiddleware.RequireWrite(rbac.ModuloOrganizacoes)

			o.Get("/", h.ListOrganizations)
			o.With(writable).Post("/", h.CreateOrganization)
			o.With(httpmiddleware.RequireRole(rbac.ModuloSistema, rbac.RoleAdministracao)).
				Post("/attachments/sync-all", h.SyncAll)

			o.Route("/{id}", func(org chi.Router) {
				org.Get("/", h.GetOrganization)
				org.With(writable).Put("/", h.UpdateOrganization)
				org.With(writable, httpmiddleware.RequireAnyModeratorRole(rbac.ModuloOrganizacoes, cfg.ModeratorRoles)).
					Delete("/", h.DeleteOrganization)

				org.Get("/attachments/available", h.AvailableAttachments)
				org.With(writable).Post("/attachments/sync", h.SyncAttachments)

				org.Route("/photos", h.attachmentRoutes(anexo.TipoFoto, "fotoID", writable))
				org.Route("/files", h.attachmentRoutes(anexo.TipoArquivo, "arquivoID", writable))
			})
		})

		private.Route("/admin", func(a chi.Router) {
			a.Use(httpmiddleware.RequireRole(rbac.ModuloSistema, rbac.RoleAdministracao))
			a.Use(httpmiddleware.RequireActiveUser(h.auth))

			a.Get("/users", h.ListUsers)
			a.Post("/users", h.CreateUser)
			a.Get("/users/{id}", h.GetUser)
			a.Put("/users/{id}", h.UpdateUser)
			a.Post("/users/{id}/roles", h.AssignRole)
			a.Delete("/users/{id}/roles/{roleID}", h.RevokeRole)
			a.Get("/modules", h.ListModules)
			a.Get("/roles", h.ListRoles)
		})

		private.Route("/audit-logs", func(a chi.Router) {
			a.Use(httpmiddleware.RequireAnyModeratorRole(rbac.ModuloSistema, []string{rbac.RoleAdministracao, rbac.RoleGestao}))
			a.Get("/", h.ListAuditLogs)
			a.Get("/stats", h.AuditStats)
			a.Get("/export", h.ExportAuditLogs)
		})
	})

	return r
}

func (h *Handler) attachmentRoutes(tipo anexo.Tipo, param string, writable func(http.Handler) http.Handler) func(chi.Router) {
	return func(a chi.Router) {
		a.Get("/", h.listAttachments(tipo))
		a.With(writable).Post("/", h.uploadAttachment(tipo))
		a.Get("/{"+param+"}", h.downloadAttachment(tipo, param))
		a.With(writable).Delete("/{"+param+"}", h.deleteAttachment(tipo, param))
	}
}

// Health responde status simples.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready valida as dependências registradas (Postgres, Redis, ODK).
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	failures := map[string]string{}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		WriteError(w, http.StatusServiceUnavailable, "REMOTE_UNAVAILABLE", "dependências indisponíveis", failures)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"ready": true, "checks": names})
}

func viewer(r *http.Request) organizacao.Viewer {
	id, _ := httpmiddleware.GetIdentity(r.Context())
	return organizacao.Viewer{UserID: id.UserID, Grants: id.Grants}
}
