package auth

import (
	"errors"
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType distinguishes what a token may be used for
type TokenType string

const (
	TokenAccess    TokenType = "access"
	TokenRefresh   TokenType = "refresh"
	TokenDocument  TokenType = "document"
	TokenSignature TokenType = "signature"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token expired")
	ErrTokenRevoked   = errors.New("token revoked")
	ErrWrongTokenType = errors.New("wrong token type")
	ErrAccessDenied   = errors.New("access denied")
)

// Claims are the JWT claims shared by every token type
type Claims struct {
	UserID      string    `json:"uid"`
	Email       string    `json:"email,omitempty"`
	Role        string    `json:"role,omitempty"`
	Type        TokenType `json:"typ"`
	DocumentID  string    `json:"doc,omitempty"`
	WorkflowID  string    `json:"wf,omitempty"`
	SignerEmail string    `json:"signer,omitempty"`
	Permissions []string  `json:"perms,omitempty"`
	jwt.RegisteredClaims
}

// HasPermission reports whether the token grants permission
func (c *Claims) HasPermission(permission string) bool {
	return slices.Contains(c.Permissions, permission)
}
