package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/orrn/taskprinter/internal/config"
	"github.com/orrn/taskprinter/internal/db"
)

const (
	CookieName           = "taskprinter_auth"
	defaultTokenDuration = 24 * time.Hour
	settingsKeyPassword  = "admin_password"
	settingsKeyJWTSecret = "jwt_secret"
	issuer               = "taskprinter"
	minPasswordLen       = 6
)

type Claims struct {
	jwt.RegisteredClaims
	Authenticated bool `json:"authenticated"`
}

type AuthMiddleware struct {
	settings *db.SettingsOperations
	secret   []byte
	duration time.Duration
	enabled  bool
	now      func() time.Time
}

type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=6"`
}

type SetupRequest struct {
	Password string `json:"password" binding:"required,min=6"`
}

type StatusResponse struct {
	Enabled       bool `json:"auth_enabled"`
	Authenticated bool `json:"authenticated"`
	SetupRequired bool `json:"setup_required"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewAuthMiddleware builds the authenticator. The signing secret comes from
// cfg.JWTSecret when set, otherwise from the settings table, where a random
// one is generated on first use.
func NewAuthMiddleware(settings *db.SettingsOperations, cfg config.AuthConfig) (*AuthMiddleware, error) {
	a := &AuthMiddleware{
		settings: settings,
		duration: cfg.TokenDuration,
		enabled:  cfg.Enabled,
		now:      time.Now,
	}
	if a.duration <= 0 {
		a.duration = defaultTokenDuration
	}

	if cfg.JWTSecret != "" {
		a.secret = []byte(cfg.JWTSecret)
		return a, nil
	}

	secret, err := a.getOrCreateSecret(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to load jwt secret: %w", err)
	}
	a.secret = secret
	return a, nil
}

func (a *AuthMiddleware) Enabled() bool { return a.enabled }

func (a *AuthMiddleware) getOrCreateSecret(ctx context.Context) ([]byte, error) {
	setting, err := a.settings.GetSetting(ctx, settingsKeyJWTSecret)
	if err == nil {
		return hex.DecodeString(setting.Value)
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	if err := a.settings.SetSetting(ctx, settingsKeyJWTSecret, hex.EncodeToString(secret), true); err != nil {
		return nil, err
	}
	return secret, nil
}

func (a *AuthMiddleware) isSetupRequired(ctx context.Context) bool {
	_, err := a.settings.GetSetting(ctx, settingsKeyPassword)
	return errors.Is(err, db.ErrNotFound)
}

// GenerateToken issues a signed token valid for the configured duration.
func (a *AuthMiddleware) GenerateToken() (string, error) {
	now := a.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.duration)),
			Issuer:    issuer,
		},
		Authenticated: true,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

func (a *AuthMiddleware) tokenFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie(CookieName); err == nil && cookie != "" {
		return cookie
	}
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func (a *AuthMiddleware) setAuthCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(CookieName, token, int(a.duration.Seconds()), "/", "", c.Request.TLS != nil, true)
}

func (a *AuthMiddleware) clearAuthCookie(c *gin.Context) {
	c.SetCookie(CookieName, "", -1, "/", "", c.Request.TLS != nil, true)
}

func (a *AuthMiddleware) LoginHandler(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, LoginResponse{Success: false, Message: "Invalid request"})
		return
	}

	ctx := c.Request.Context()
	setting, err := a.settings.GetSetting(ctx, settingsKeyPassword)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusForbidden, LoginResponse{Success: false, Message: "Setup required"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, LoginResponse{Success: false, Message: "Server error"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(setting.Value), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, LoginResponse{Success: false, Message: "Invalid password"})
		return
	}

	token, err := a.GenerateToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, LoginResponse{Success: false, Message: "Failed to generate token"})
		return
	}

	a.setAuthCookie(c, token)
	c.JSON(http.StatusOK, LoginResponse{Success: true})
}

func (a *AuthMiddleware) LogoutHandler(c *gin.Context) {
	a.clearAuthCookie(c)
	c.JSON(http.StatusOK, LoginResponse{Success: true, Message: "Logged out"})
}

func (a *AuthMiddleware) StatusHandler(c *gin.Context) {
	if !a.enabled {
		c.JSON(http.StatusOK, StatusResponse{Enabled: false, Authenticated: true})
		return
	}

	setupRequired := a.isSetupRequired(c.Request.Context())
	token := a.tokenFromRequest(c)
	if token == "" {
		c.JSON(http.StatusOK, StatusResponse{Enabled: true, SetupRequired: setupRequired})
		return
	}

	claims, err := a.validateToken(token)
	if err != nil {
		c.JSON(http.StatusOK, StatusResponse{Enabled: true, SetupRequired: setupRequired})
		return
	}
	c.JSON(http.StatusOK, StatusResponse{Enabled: true, Authenticated: claims.Authenticated, SetupRequired: setupRequired})
}

func (a *AuthMiddleware) ChangePasswordHandler(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{
			Error:   "validation_error",
			Message: fmt.Sprintf("current_password and new_password (min %d characters) are required", minPasswordLen),
		})
		return
	}

	ctx := c.Request.Context()
	setting, err := a.settings.GetSetting(ctx, settingsKeyPassword)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusForbidden, errorBody{Error: "setup_required", Message: "No password has been set"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody{Error: "database_error", Message: "Failed to read password"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(setting.Value), []byte(req.CurrentPassword)); err != nil {
		c.JSON(http.StatusUnauthorized, errorBody{Error: "invalid_password", Message: "Current password is incorrect"})
		return
	}

	if err := a.storePassword(ctx, req.NewPassword); err != nil {
		c.JSON(http.StatusInternalServerError, errorBody{Error: "database_error", Message: "Failed to update password"})
		return
	}

	token, err := a.GenerateToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody{Error: "token_error", Message: "Failed to generate token"})
		return
	}

	a.setAuthCookie(c, token)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password changed"})
}

func (a *AuthMiddleware) SetupHandler(c *gin.Context) {
	ctx := c.Request.Context()
	if !a.isSetupRequired(ctx) {
		c.JSON(http.StatusConflict, errorBody{Error: "already_setup", Message: "Setup already completed"})
		return
	}

	var req SetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{
			Error:   "validation_error",
			Message: fmt.Sprintf("password must be at least %d characters", minPasswordLen),
		})
		return
	}

	if err := a.storePassword(ctx, req.Password); err != nil {
		c.JSON(http.StatusInternalServerError, errorBody{Error: "database_error", Message: "Failed to save password"})
		return
	}

	token, err := a.GenerateToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody{Error: "token_error", Message: "Failed to generate token"})
		return
	}

	a.setAuthCookie(c, token)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Setup completed"})
}

func (a *AuthMiddleware) storePassword(ctx context.Context, password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return a.settings.SetSetting(ctx, settingsKeyPassword, string(hashed), true)
}

// RequireAuth rejects requests without a valid token. It passes everything
// through when auth is disabled.
func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.enabled {
			c.Next()
			return
		}

		token := a.tokenFromRequest(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "Authentication required"})
			return
		}

		claims, err := a.validateToken(token)
		if err != nil || !claims.Authenticated {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "Invalid or expired token"})
			return
		}

		c.Set("claims", claims)
		c.Next()
	}
}

func RegisterAuthRoutes(r *gin.RouterGroup, a *AuthMiddleware) {
	auth := r.Group("/auth")
	{
		auth.POST("/setup", a.SetupHandler)
		auth.POST("/login", a.LoginHandler)
		auth.POST("/logout", a.LogoutHandler)
		auth.GET("/status", a.StatusHandler)
	}
}
