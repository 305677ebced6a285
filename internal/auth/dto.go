package auth

import (
	"strings"

	"github.com/frahmantamala/production-management/internal/core/common/validation"
)

// LoginDTO accepts either the login name or the email in Login.
type LoginDTO struct {
	Login    string `json:"login"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Identifier returns whichever of login/email the client sent.
func (d LoginDTO) Identifier() string {
	if s := strings.TrimSpace(d.Login); s != "" {
		return s
	}
	return strings.TrimSpace(d.Email)
}

func (d LoginDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("login", d.Identifier()).Required().MaxLength(255)
	v.Field("password", d.Password).Required().MaxLength(72)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// RefreshTokenDTO is the body fallback for clients that cannot send cookies.
type RefreshTokenDTO struct {
	RefreshToken string `json:"refresh_token"`
}
