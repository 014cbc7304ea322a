package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gofiber/fiber/v2"
	"github.com/gofrs/uuid/v5"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/hackerspacekrk/iotm/internal/config"
)

// adminSessionCookie is the cookie carrying an AdminSession's id, mirroring
// auth.go's CookieName.
const adminSessionCookie = "iotm_admin_session"

// AdminSessionModel persists a logged-in admin's token, mirroring the
// teacher's SessionModel but scoped to this package's table name so it
// shares the configuration store's sqlite file without colliding with
// IoTM's own rule/tag/manager-config tables.
type AdminSessionModel struct {
	ID           string `gorm:"primaryKey"`
	Subject      string
	IdPSessionID string
	Username     string
	AccessToken  string
	RefreshToken string
	CachedClaims string
	ExpiresAt    time.Time
}

func (AdminSessionModel) TableName() string { return "iotm_admin_session" }

// Authenticator guards the admin write-back API with an OIDC login flow,
// grounded on auth.go: same authorization-code exchange, ID-token
// verification, and cookie-backed session lookup, adapted from a
// hackerspace-membership dashboard's claims onto a generic username claim.
type Authenticator struct {
	db           *gorm.DB
	cfg          *config.OidcConfig
	provider     *oidc.Provider
	oauth2Config *oauth2.Config
}

// NewAuthenticator initializes OIDC discovery against cfg.IssuerURL. It
// returns (nil, nil) when cfg is nil, matching initAuth's "OIDC not
// configured" no-op path.
func NewAuthenticator(db *gorm.DB, cfg *config.OidcConfig, publicURL string) (*Authenticator, error) {
	if cfg == nil {
		log.Printf("[admin] OIDC not configured, write-back API is unauthenticated")
		return nil, nil
	}
	if err := db.AutoMigrate(&AdminSessionModel{}); err != nil {
		return nil, fmt.Errorf("admin: migrating session table: %w", err)
	}

	ctx := context.Background()
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("admin: OIDC discovery failed: %w", err)
	}

	scopes := append([]string{oidc.ScopeOpenID, "profile", "email"}, cfg.ExtraScopes...)
	return &Authenticator{
		db:       db,
		cfg:      cfg,
		provider: provider,
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  publicURL + "/api/v1/auth/callback",
			Endpoint:     provider.Endpoint(),
			Scopes:       scopes,
		},
	}, nil
}

func (a *Authenticator) handleLogin(c *fiber.Ctx) error {
	return c.Redirect(a.oauth2Config.AuthCodeURL("state", oauth2.AccessTypeOffline), fiber.StatusFound)
}

func (a *Authenticator) handleCallback(c *fiber.Ctx) error {
	code := c.Query("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing code"})
	}

	ctx := context.Background()
	token, err := a.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "token exchange failed: " + err.Error()})
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "response has no id_token"})
	}
	idToken, err := a.provider.Verifier(&oidc.Config{ClientID: a.cfg.ClientID}).Verify(ctx, rawIDToken)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "id_token verification failed: " + err.Error()})
	}

	var claims struct {
		Sub string `json:"sub"`
		Sid string `json:"sid"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "claims parse failed: " + err.Error()})
	}

	userInfo, err := a.provider.UserInfo(ctx, a.oauth2Config.TokenSource(ctx, token))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "userinfo failed: " + err.Error()})
	}
	var allClaims map[string]any
	_ = userInfo.Claims(&allClaims)
	cachedClaims, _ := json.Marshal(allClaims)

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.Must(uuid.NewV4())
	}
	sess := AdminSessionModel{
		ID:           id.String(),
		Subject:      claims.Sub,
		IdPSessionID: claims.Sid,
		Username:     extractUsername(a.cfg.UsernameClaim, allClaims),
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		CachedClaims: string(cachedClaims),
		ExpiresAt:    time.Now().Add(31 * 24 * time.Hour),
	}
	if err := a.db.Create(&sess).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "session persist failed: " + err.Error()})
	}

	c.Cookie(&fiber.Cookie{
		Name:     adminSessionCookie,
		Value:    sess.ID,
		Expires:  sess.ExpiresAt,
		HTTPOnly: true,
		SameSite: "Lax",
	})
	return c.JSON(fiber.Map{"username": sess.Username})
}

func (a *Authenticator) handleLogout(c *fiber.Ctx) error {
	cookie := c.Cookies(adminSessionCookie)
	if cookie != "" {
		a.db.Delete(&AdminSessionModel{}, "id = ?", cookie)
	}
	c.Cookie(&fiber.Cookie{Name: adminSessionCookie, Value: "", Expires: time.Now().Add(-time.Hour)})
	return c.SendStatus(fiber.StatusOK)
}

func (a *Authenticator) handleMe(c *fiber.Ctx) error {
	sess, err := a.lookupSession(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "not logged in"})
	}
	return c.JSON(fiber.Map{"username": sess.Username})
}

// middleware rejects requests without a valid admin session cookie,
// mirroring AuthMiddleware.
func (a *Authenticator) middleware(c *fiber.Ctx) error {
	sess, err := a.lookupSession(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "not logged in"})
	}
	c.Locals("username", sess.Username)
	return c.Next()
}

func (a *Authenticator) lookupSession(c *fiber.Ctx) (*AdminSessionModel, error) {
	cookie := c.Cookies(adminSessionCookie)
	if cookie == "" {
		return nil, fmt.Errorf("no session cookie")
	}
	var sess AdminSessionModel
	if err := a.db.First(&sess, "id = ?", cookie).Error; err != nil {
		return nil, err
	}
	if time.Now().After(sess.ExpiresAt) {
		a.db.Delete(&sess)
		return nil, fmt.Errorf("session expired")
	}
	return &sess, nil
}

func extractUsername(claim string, claims map[string]any) string {
	if claim == "" {
		claim = "preferred_username"
	}
	username, _ := claims[claim].(string)
	return username
}
