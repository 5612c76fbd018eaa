package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/storefront-admin/storefront/internal/platform/httpx"
	"github.com/storefront-admin/storefront/internal/shared"
)

// CatalogSyncEnqueuer schedules a background catalog bootstrap.
type CatalogSyncEnqueuer interface {
	EnqueueCatalogSync(ctx context.Context) (string, error)
}

// AdminHandler exposes role and permission management as JSON endpoints.
type AdminHandler struct {
	logger    *slog.Logger
	service   *Service
	rbac      Middleware
	sync      CatalogSyncEnqueuer
	validator *validator.Validate
}

// NewAdminHandler builds AdminHandler instance. When sync is nil catalog
// syncs run inline.
func NewAdminHandler(logger *slog.Logger, service *Service, rbac Middleware, sync CatalogSyncEnqueuer) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{logger: logger, service: service, rbac: rbac, sync: sync, validator: validator.New()}
}

// MountRoutes registers RBAC administration routes.
func (h *AdminHandler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAll(shared.PermAdminAccess))
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermPermissionsRead))
		r.Get("/permissions", h.listPermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermRolesRead))
		r.Get("/roles", h.listRoles)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermUsersRead))
		r.Get("/users/{userID}/permissions", h.showUserAccess)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermRolesWrite, shared.PermUsersUpdate))
		r.Post("/users/{userID}/roles", h.assignRole)
		r.Delete("/users/{userID}/roles/{roleID}", h.removeRole)
		r.Post("/users/{userID}/permissions", h.grantPermission)
		r.Delete("/users/{userID}/permissions/{permission}", h.revokePermission)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermRolesWrite))
		r.Post("/roles/{roleID}/permissions", h.grantRolePermission)
		r.Delete("/roles/{roleID}/permissions/{permission}", h.revokeRolePermission)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermPermissionsWrite))
		r.Post("/sync", h.syncCatalog)
	})
}

type permissionDTO struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Deprecated  bool      `json:"deprecated"`
}

type roleDTO struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsSystem    bool      `json:"is_system"`
	GrantsAll   bool      `json:"grants_all"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type userAccessDTO struct {
	UserID      uuid.UUID `json:"user_id"`
	Roles       []roleDTO `json:"roles"`
	Permissions []string  `json:"permissions"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id" validate:"required,uuid"`
}

type grantPermissionRequest struct {
	Permission string `json:"permission" validate:"required,max=255"`
}

func (h *AdminHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.fail(w, "list permissions", err)
		return
	}
	out := make([]permissionDTO, 0, len(perms))
	for _, p := range perms {
		out = append(out, permissionDTO{ID: p.ID, Name: p.Name, Description: p.Description, Deprecated: p.Deprecated})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *AdminHandler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleDTOs(roles))
}

func (h *AdminHandler) showUserAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.uuidParam(w, r, "userID")
	if !ok {
		return
	}
	roles, err := h.service.RolesOf(r.Context(), userID)
	if err != nil {
		h.fail(w, "roles of user", err)
		return
	}
	perms, err := h.service.EffectivePermissions(r.Context(), userID)
	if err != nil {
		h.fail(w, "effective permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, userAccessDTO{UserID: userID, Roles: toRoleDTOs(roles), Permissions: perms})
}

func (h *AdminHandler) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.uuidParam(w, r, "userID")
	if !ok {
		return
	}
	var req assignRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := RoleAssignment{UserID: userID, RoleID: uuid.MustParse(req.RoleID), ActorID: actorID(r)}
	if err := h.service.AssignRole(r.Context(), in); err != nil {
		h.fail(w, "assign role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) removeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.uuidParam(w, r, "userID")
	if !ok {
		return
	}
	roleID, ok := h.uuidParam(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.RemoveRole(r.Context(), RoleAssignment{UserID: userID, RoleID: roleID, ActorID: actorID(r)}); err != nil {
		h.fail(w, "remove role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) grantPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.uuidParam(w, r, "userID")
	if !ok {
		return
	}
	var req grantPermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := PermissionGrant{UserID: userID, Permission: req.Permission, ActorID: actorID(r)}
	if err := h.service.GrantPermission(r.Context(), in); err != nil {
		h.fail(w, "grant permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) revokePermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.uuidParam(w, r, "userID")
	if !ok {
		return
	}
	in := PermissionGrant{UserID: userID, Permission: chi.URLParam(r, "permission"), ActorID: actorID(r)}
	if err := h.service.RevokePermission(r.Context(), in); err != nil {
		h.fail(w, "revoke permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) grantRolePermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.uuidParam(w, r, "roleID")
	if !ok {
		return
	}
	var req grantPermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := RolePermissionGrant{RoleID: roleID, Permission: req.Permission, ActorID: actorID(r)}
	if err := h.service.GrantRolePermission(r.Context(), in); err != nil {
		h.fail(w, "grant role permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) revokeRolePermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.uuidParam(w, r, "roleID")
	if !ok {
		return
	}
	in := RolePermissionGrant{RoleID: roleID, Permission: chi.URLParam(r, "permission"), ActorID: actorID(r)}
	if err := h.service.RevokeRolePermission(r.Context(), in); err != nil {
		h.fail(w, "revoke role permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) syncCatalog(w http.ResponseWriter, r *http.Request) {
	if h.sync != nil {
		taskID, err := h.sync.EnqueueCatalogSync(r.Context())
		if err != nil {
			h.logger.Error("enqueue catalog sync", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
		return
	}
	if err := h.service.Bootstrap(r.Context(), DefaultCatalog()); err != nil {
		h.fail(w, "catalog sync", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", fmt.Sprintf("%s: %s", verrs[0].Field(), verrs[0].Tag()))
			return false
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *AdminHandler) uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", name+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *AdminHandler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.Is(err, ErrInvalidDefinition):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
	default:
		h.logger.Error("rbac admin "+op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func actorID(r *http.Request) uuid.UUID {
	if p := PrincipalFromContext(r.Context()); p != nil {
		return p.ID
	}
	return uuid.Nil
}

func toRoleDTOs(roles []Role) []roleDTO {
	out := make([]roleDTO, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleDTO{
			ID:          role.ID,
			Name:        role.Name,
			Description: role.Description,
			IsSystem:    role.IsSystem,
			GrantsAll:   role.GrantsAll,
			UpdatedAt:   role.UpdatedAt,
		})
	}
	return out
}
