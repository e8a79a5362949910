package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/buffrsign/esign-orchestrator/internal/application/port"
	"github.com/buffrsign/esign-orchestrator/internal/domain/entity"
)

// Config holds token signing settings
type Config struct {
	Secret       string
	Issuer       string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	DocumentTTL  time.Duration
	SignatureTTL time.Duration
}

// TokenPair is returned on login and refresh
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Service issues, validates and revokes scoped tokens
type Service struct {
	cfg       Config
	secret    []byte
	blacklist port.TokenBlacklist
	now       func() time.Time
}

// NewService creates a token service. A nil blacklist falls back to memory.
func NewService(cfg Config, blacklist port.TokenBlacklist) (*Service, error) {
	if len(cfg.Secret) < 32 {
		return nil, fmt.Errorf("token secret must be at least 32 characters")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.DocumentTTL <= 0 {
		cfg.DocumentTTL = time.Hour
	}
	if cfg.SignatureTTL <= 0 {
		cfg.SignatureTTL = 72 * time.Hour
	}
	if blacklist == nil {
		blacklist = NewMemoryBlacklist()
	}

	return &Service{
		cfg:       cfg,
		secret:    []byte(cfg.Secret),
		blacklist: blacklist,
		now:       time.Now,
	}, nil
}

// IssueTokenPair issues an access and a refresh token for a user
func (s *Service) IssueTokenPair(userID, email, role string) (*TokenPair, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	access, accessExp, err := s.sign(Claims{UserID: userID, Email: email, Role: role, Type: TokenAccess}, s.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, _, err := s.sign(Claims{UserID: userID, Email: email, Role: role, Type: TokenRefresh}, s.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresAt:    accessExp,
	}, nil
}

// Refresh exchanges a refresh token for a new pair and revokes the old refresh token
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.Validate(ctx, refreshToken, TokenRefresh)
	if err != nil {
		return nil, err
	}

	if err := s.revokeClaims(ctx, claims); err != nil {
		return nil, err
	}

	return s.IssueTokenPair(claims.UserID, claims.Email, claims.Role)
}

// IssueDocumentToken issues a token scoped to one document. Zero ttl uses the configured default.
func (s *Service) IssueDocumentToken(userID, documentID string, permissions []string, ttl time.Duration) (string, time.Time, error) {
	if documentID == "" {
		return "", time.Time{}, fmt.Errorf("document id is required")
	}
	if len(permissions) == 0 {
		permissions = []string{entity.PermissionRead}
	}
	if ttl <= 0 {
		ttl = s.cfg.DocumentTTL
	}

	return s.sign(Claims{
		UserID:      userID,
		Type:        TokenDocument,
		DocumentID:  documentID,
		Permissions: append([]string(nil), permissions...),
	}, ttl)
}

// IssueSignatureToken issues a token that lets one signer read and sign one document
func (s *Service) IssueSignatureToken(userID, documentID, signerEmail, workflowID string, ttl time.Duration) (string, time.Time, error) {
	if documentID == "" || signerEmail == "" {
		return "", time.Time{}, fmt.Errorf("document id and signer email are required")
	}
	if ttl <= 0 {
		ttl = s.cfg.SignatureTTL
	}

	return s.sign(Claims{
		UserID:      userID,
		Email:       signerEmail,
		Type:        TokenSignature,
		DocumentID:  documentID,
		WorkflowID:  workflowID,
		SignerEmail: signerEmail,
		Permissions: []string{entity.PermissionRead, entity.PermissionSign},
	}, ttl)
}

// Validate parses a token and checks signature, expiry, revocation and type.
// An empty expected type accepts any type.
func (s *Service) Validate(ctx context.Context, token string, expected TokenType) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing token id", ErrInvalidToken)
	}
	if expected != "" && claims.Type != expected {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrWrongTokenType, claims.Type, expected)
	}

	revoked, err := s.blacklist.Contains(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check token blacklist: %w", err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

// ValidateDocumentAccess checks that a document or signature token grants permission on documentID
func (s *Service) ValidateDocumentAccess(ctx context.Context, token, documentID, permission string) (*Claims, error) {
	claims, err := s.Validate(ctx, token, "")
	if err != nil {
		return nil, err
	}

	if claims.Type != TokenDocument && claims.Type != TokenSignature {
		return nil, fmt.Errorf("%w: %s tokens carry no document scope", ErrWrongTokenType, claims.Type)
	}
	if claims.DocumentID != documentID {
		return nil, fmt.Errorf("%w: token is scoped to another document", ErrAccessDenied)
	}
	if permission != "" && !claims.HasPermission(permission) {
		return nil, fmt.Errorf("%w: missing %s permission", ErrAccessDenied, permission)
	}

	return claims, nil
}

// Revoke blacklists a token until it would have expired. Expired tokens need no revocation.
func (s *Service) Revoke(ctx context.Context, token string) error {
	claims, err := s.Validate(ctx, token, "")
	if errors.Is(err, ErrExpiredToken) || errors.Is(err, ErrTokenRevoked) {
		return nil
	}
	if err != nil {
		return err
	}

	return s.revokeClaims(ctx, claims)
}

func (s *Service) revokeClaims(ctx context.Context, claims *Claims) error {
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		if remaining := claims.ExpiresAt.Time.Sub(s.now()); remaining > 0 {
			ttl = remaining
		}
	}

	if err := s.blacklist.Add(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *Service) sign(claims Claims, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(ttl)

	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    s.cfg.Issuer,
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}
