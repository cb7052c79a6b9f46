package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ops-management-api/internal/apperr"
	"github.com/ops-management-api/internal/database"
	"github.com/ops-management-api/internal/models"
)

type TenantRepository struct {
	db database.Querier
}

func NewTenantRepository(db database.Querier) *TenantRepository {
	return &TenantRepository{db: db}
}

// Create inserts a tenant owned by a user and adds the owner membership.
func (r *TenantRepository) Create(ctx context.Context, name, slug string, ownerID uuid.UUID) (*models.Tenant, error) {
	query := `
		INSERT INTO tenants (name, slug, owner_id, status)
		VALUES ($1, $2, $3, 'active')
		RETURNING id, name, slug, owner_id, status, created_at, updated_at
	`

	var tenant models.Tenant
	err := r.db.QueryRow(ctx, query, name, slug, ownerID).Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.Slug,
		&tenant.OwnerID,
		&tenant.Status,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	memberQuery := `INSERT INTO tenant_members (user_id, tenant_id, role) VALUES ($1, $2, 'owner')`
	if _, err := r.db.Exec(ctx, memberQuery, ownerID, tenant.ID); err != nil {
		return nil, fmt.Errorf("failed to add owner membership: %w", err)
	}

	return &tenant, nil
}

// GetByID returns one tenant.
func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	query := `
		SELECT id, name, slug, owner_id, status, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`

	var tenant models.Tenant
	err := r.db.QueryRow(ctx, query, id).Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.Slug,
		&tenant.OwnerID,
		&tenant.Status,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("tenant")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &tenant, nil
}

// GetBySlug resolves a tenant from its URL slug.
func (r *TenantRepository) GetBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	query := `
		SELECT id, name, slug, owner_id, status, created_at, updated_at
		FROM tenants
		WHERE slug = $1
	`

	var tenant models.Tenant
	err := r.db.QueryRow(ctx, query, slug).Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.Slug,
		&tenant.OwnerID,
		&tenant.Status,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("tenant")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &tenant, nil
}

// GetMemberRoles returns the caller's roles in a tenant; empty means no
// membership.
func (r *TenantRepository) GetMemberRoles(ctx context.Context, userID, tenantID uuid.UUID) ([]string, error) {
	query := `
		SELECT role FROM tenant_members
		WHERE user_id = $1 AND tenant_id = $2
	`

	rows, err := r.db.Query(ctx, query, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query member roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roles: %w", err)
	}
	return roles, nil
}

// GetRolePermissions expands roles into their permission codes.
func (r *TenantRepository) GetRolePermissions(ctx context.Context, roles []string) ([]string, error) {
	if len(roles) == 0 {
		return nil, nil
	}

	query := `
		SELECT DISTINCT permission FROM role_permissions
		WHERE role = ANY($1)
		ORDER BY permission ASC
	`

	rows, err := r.db.Query(ctx, query, roles)
	if err != nil {
		return nil, fmt.Errorf("failed to query role permissions: %w", err)
	}
	defer rows.Close()

	var permissions []string
	for rows.Next() {
		var permission string
		if err := rows.Scan(&permission); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		permissions = append(permissions, permission)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating permissions: %w", err)
	}
	return permissions, nil
}

// AddMember adds a user to a tenant with a role; a duplicate assignment is a
// business-rule violation.
func (r *TenantRepository) AddMember(ctx context.Context, userID, tenantID uuid.UUID, role string) error {
	query := `
		INSERT INTO tenant_members (user_id, tenant_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, tenant_id, role) DO NOTHING
	`

	tag, err := r.db.Exec(ctx, query, userID, tenantID, role)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.BusinessRule("member_exists", "user already has this role in the tenant").
			WithDetail("role", role)
	}
	return nil
}
