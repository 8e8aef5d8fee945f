package models

// Tenant represents an isolated storefront within the platform.
type Tenant struct {
	BaseModel

	Name string `gorm:"not null" json:"name"`
	Slug string `gorm:"uniqueIndex;not null" json:"slug"`

	Memberships []TenantMembership `gorm:"foreignKey:TenantID" json:"memberships,omitempty"`
}

// Tenant membership roles.
const (
	TenantRoleOwner  = "owner"
	TenantRoleAdmin  = "admin"
	TenantRoleMember = "member"
)

// TenantMembership links a user to a tenant. Invitations start with
// IsAccepted=false and flip once the invitee confirms.
type TenantMembership struct {
	BaseModel

	TenantID string `gorm:"type:uuid;not null;uniqueIndex:idx_tenant_user" json:"tenant_id"`
	UserID   string `gorm:"type:uuid;not null;uniqueIndex:idx_tenant_user" json:"user_id"`

	Role       string `gorm:"type:varchar(20);default:'member'" json:"role"`
	IsAccepted bool   `gorm:"default:false;index" json:"is_accepted"`
	IsActive   bool   `gorm:"default:true" json:"is_active"`

	Tenant *Tenant `json:"tenant,omitempty"`
	User   *User   `json:"user,omitempty"`
}
