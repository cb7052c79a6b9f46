package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ops-management-api/internal/auth"
	"github.com/ops-management-api/internal/config"
	"github.com/ops-management-api/internal/models"
	"github.com/ops-management-api/internal/repository"
	"github.com/ops-management-api/internal/utils"
)

// AuthHandler issues tokens. Registration and login run outside the request
// pipeline: there is no principal yet, and users/tenants are global tables.
type AuthHandler struct {
	users   *repository.UserRepository
	tenants *repository.TenantRepository
	cfg     *config.Config
	logger  *zap.Logger
}

func NewAuthHandler(users *repository.UserRepository, tenants *repository.TenantRepository, cfg *config.Config, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, tenants: tenants, cfg: cfg, logger: logger}
}

// Register creates a user and their tenant, and returns a token scoped to the
// new tenant with the owner role.
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req.Email = utils.NormalizeEmail(req.Email)

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.Create(ctx, req.Email, hashedPassword, req.FullName)
	if err != nil {
		h.logger.Warn("registration failed", zap.String("email", req.Email), zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{"error": "could not register user"})
		return
	}

	tenant, err := h.tenants.Create(ctx, req.TenantName, utils.GenerateSlug(req.TenantName), user.ID)
	if err != nil {
		h.logger.Warn("tenant creation failed", zap.String("tenant_name", req.TenantName), zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{"error": "could not create tenant"})
		return
	}

	roles := []string{"owner"}
	permissions, err := h.tenants.GetRolePermissions(ctx, roles)
	if err != nil {
		writeError(c, err)
		return
	}

	token, err := auth.GenerateJWT(auth.Claims{
		UserID:      user.ID,
		TenantID:    &tenant.ID,
		Roles:       roles,
		Permissions: permissions,
	}, h.cfg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	response := models.LoginResponse{Token: token, TenantID: &tenant.ID, Roles: roles, Permissions: permissions}
	response.User.ID = user.ID
	response.User.Email = user.Email
	response.User.FullName = user.FullName

	c.JSON(http.StatusCreated, response)
}

// Login authenticates a user and issues a token. A tenant slug selects the
// tenant context; super admins may log in without one.
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.GetByEmail(ctx, utils.NormalizeEmail(req.Email))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	claims := auth.Claims{UserID: user.ID, IsSuperAdmin: user.IsSuperAdmin}
	var roles, permissions []string

	if req.Tenant != "" {
		tenant, err := h.tenants.GetBySlug(ctx, req.Tenant)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		roles, err = h.tenants.GetMemberRoles(ctx, user.ID, tenant.ID)
		if err != nil {
			writeError(c, err)
			return
		}
		if len(roles) == 0 && !user.IsSuperAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this tenant"})
			return
		}

		permissions, err = h.tenants.GetRolePermissions(ctx, roles)
		if err != nil {
			writeError(c, err)
			return
		}

		claims.TenantID = &tenant.ID
		claims.Roles = roles
		claims.Permissions = permissions
	} else if !user.IsSuperAdmin {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant is required"})
		return
	}

	token, err := auth.GenerateJWT(claims, h.cfg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	response := models.LoginResponse{Token: token, TenantID: claims.TenantID, Roles: roles, Permissions: permissions}
	response.User.ID = user.ID
	response.User.Email = user.Email
	response.User.FullName = user.FullName

	c.JSON(http.StatusOK, response)
}

// Me returns the authenticated user's identity as seen by the pipeline.
func (h *AuthHandler) Me(c *gin.Context) {
	principal := auth.PrincipalFromContext(c.Request.Context())
	if !principal.IsAuthenticated || principal.UserID == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), *principal.UserID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":          user.ID,
		"email":       user.Email,
		"full_name":   user.FullName,
		"tenant_id":   principal.TenantID,
		"roles":       principal.Roles,
		"permissions": principal.Permissions,
	})
}
