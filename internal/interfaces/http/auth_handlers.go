package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/buffrsign/esign-orchestrator/internal/auth"
)

// IssueTokensBody is accepted by POST /api/auth/tokens
type IssueTokensBody struct {
	UserID string `json:"user_id" binding:"required"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// TokenBody carries a single token
type TokenBody struct {
	Token string `json:"token" binding:"required"`
}

// ValidateTokenBody is accepted by POST /api/auth/validate.
// DocumentID switches to document access validation.
type ValidateTokenBody struct {
	Token      string `json:"token" binding:"required"`
	Type       string `json:"type"`
	DocumentID string `json:"document_id"`
	Permission string `json:"permission"`
}

// DocumentTokenBody is accepted by POST /api/auth/document-tokens
type DocumentTokenBody struct {
	DocumentID  string   `json:"document_id" binding:"required"`
	Permissions []string `json:"permissions"`
	TTLSeconds  int      `json:"ttl_seconds"`
}

// SignatureTokenBody is accepted by POST /api/auth/signature-tokens
type SignatureTokenBody struct {
	DocumentID  string `json:"document_id" binding:"required"`
	SignerEmail string `json:"signer_email" binding:"required"`
	WorkflowID  string `json:"workflow_id"`
	TTLSeconds  int    `json:"ttl_seconds"`
}

// ScopedTokenResponse is returned for document and signature tokens
type ScopedTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueTokens handles POST /api/auth/tokens
func (h *Handlers) IssueTokens(c *gin.Context) {
	var body IssueTokensBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body", err.Error())
		return
	}

	pair, err := h.deps.Tokens.IssueTokenPair(body.UserID, body.Email, body.Role)
	if err != nil {
		h.writeError(c, "issue_tokens", err)
		return
	}
	ok(c, http.StatusCreated, pair)
}

// RefreshTokens handles POST /api/auth/refresh
func (h *Handlers) RefreshTokens(c *gin.Context) {
	var body TokenBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body", err.Error())
		return
	}

	pair, err := h.deps.Tokens.Refresh(c.Request.Context(), body.Token)
	if err != nil {
		h.writeError(c, "refresh_tokens", err)
		return
	}
	ok(c, http.StatusOK, pair)
}

// ValidateToken handles POST /api/auth/validate
func (h *Handlers) ValidateToken(c *gin.Context) {
	var body ValidateTokenBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body", err.Error())
		return
	}

	var (
		claims *auth.Claims
		err    error
	)
	if body.DocumentID != "" {
		claims, err = h.deps.Tokens.ValidateDocumentAccess(c.Request.Context(), body.Token, body.DocumentID, body.Permission)
	} else {
		claims, err = h.deps.Tokens.Validate(c.Request.Context(), body.Token, auth.TokenType(body.Type))
	}
	if err != nil {
		h.writeError(c, "validate_token", err)
		return
	}
	ok(c, http.StatusOK, claims)
}

// RevokeToken handles POST /api/auth/revoke
func (h *Handlers) RevokeToken(c *gin.Context) {
	var body TokenBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body", err.Error())
		return
	}

	if err := h.deps.Tokens.Revoke(c.Request.Context(), body.Token); err != nil {
		h.writeError(c, "revoke_token", err)
		return
	}
	ok(c, http.StatusOK, gin.H{"revoked": true})
}

// IssueDocumentToken handles POST /api/auth/document-tokens
func (h *Handlers) IssueDocumentToken(c *gin.Context) {
	var body DocumentTokenBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body", err.Error())
		return
	}

	token, expiresAt, err := h.deps.Tokens.IssueDocumentToken(callerID(c), body.DocumentID, body.Permissions, seconds(body.TTLSeconds))
	if err != nil {
		h.writeError(c, "issue_document_token", err)
		return
	}
	ok(c, http.StatusCreated, ScopedTokenResponse{Token: token, ExpiresAt: expiresAt})
}

// IssueSignatureToken handles POST /api/auth/signature-tokens
func (h *Handlers) IssueSignatureToken(c *gin.Context) {
	var body SignatureTokenBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body", err.Error())
		return
	}

	token, expiresAt, err := h.deps.Tokens.IssueSignatureToken(callerID(c), body.DocumentID, body.SignerEmail, body.WorkflowID, seconds(body.TTLSeconds))
	if err != nil {
		h.writeError(c, "issue_signature_token", err)
		return
	}
	ok(c, http.StatusCreated, ScopedTokenResponse{Token: token, ExpiresAt: expiresAt})
}

func callerID(c *gin.Context) string {
	if claims := claimsFrom(c); claims != nil {
		return claims.UserID
	}
	return ""
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
