package user

import (
	"time"

	roleDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/role"
)

type User struct {
	ID           int64                `gorm:"primaryKey"`
	Login        string               `gorm:"column:login;uniqueIndex;not null"`
	Email        string               `gorm:"column:email;uniqueIndex;not null"`
	PasswordHash string               `gorm:"column:password_hash;not null"`
	FirstName    string               `gorm:"column:first_name"`
	LastName     string               `gorm:"column:last_name"`
	PhoneNumber  *string              `gorm:"column:phone_number"`
	IsActive     bool                 `gorm:"column:is_active;not null;default:true"`
	LastLoginAt  *time.Time           `gorm:"column:last_login_at"`
	Roles        []roleDatamodel.Role `gorm:"many2many:user_roles;joinForeignKey:UserID;joinReferences:RoleID"`
	CreatedAt    time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string { return "users" }

// UserRole is the explicit join model; registered so role usage can be counted
// without loading users.
type UserRole struct {
	UserID int64 `gorm:"column:user_id;primaryKey"`
	RoleID int64 `gorm:"column:role_id;primaryKey;index"`
}

func (UserRole) TableName() string { return "user_roles" }

// RefreshToken tracks issued refresh tokens by their JWT id so logout and
// rotation can revoke them.
type RefreshToken struct {
	ID        string     `gorm:"column:id;primaryKey"`
	UserID    int64      `gorm:"column:user_id;index;not null"`
	ExpiresAt time.Time  `gorm:"column:expires_at;not null"`
	RevokedAt *time.Time `gorm:"column:revoked_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (RefreshToken) TableName() string { return "refresh_tokens" }
