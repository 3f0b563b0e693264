package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cloudidm/onboard/internal/config"
	"github.com/cloudidm/onboard/internal/identity"
	"github.com/cloudidm/onboard/internal/provision"
	"github.com/cloudidm/onboard/internal/report"
	"github.com/cloudidm/onboard/internal/sessions"
	"github.com/cloudidm/onboard/internal/tokens"
	"github.com/cloudidm/onboard/pkg/logger"
	"github.com/cloudidm/onboard/pkg/middleware"
)

// PortalLoginRole is the identity-backend role an operator account must
// hold to use the portal at all.
const PortalLoginRole = "cpf_admin"

// LoginRequest is a password login against the identity backend. Contract
// and region fall back to the configured defaults when omitted.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Contract string `json:"contract"`
	Region   string `json:"region"`
}

// OnboardRequest names the person to provision and the project to attach
// them to. The project is created when it does not exist yet.
type OnboardRequest struct {
	Email   string `json:"email" binding:"required"`
	Project string `json:"project" binding:"required"`
}

// PortalHandler wires the HTTP surface: operator login, one-shot
// provisioning, status lookup and logout.
type PortalHandler struct {
	cfg         *config.Config
	sessionsSvc *sessions.Service
	reports     report.Store

	// seams for tests; default to the identity backend
	authenticate func(ctx context.Context, region string, creds identity.Credentials) (*identity.AuthResult, error)
	provision    func(ctx context.Context, sess *sessions.Session, email, project string) provision.Outcome
}

func NewPortalHandler(cfg *config.Config, s *sessions.Service, r report.Store) *PortalHandler {
	h := &PortalHandler{cfg: cfg, sessionsSvc: s, reports: r}
	h.authenticate = h.backendLogin
	h.provision = h.backendProvision
	return h
}

// Register routes under /api. The onboarding routes sit behind the session
// middleware; login is rate-limited per client IP instead.
func (h *PortalHandler) Register(rg *gin.RouterGroup, auth gin.HandlerFunc, loginLimit gin.HandlerFunc) {
	rg.POST("/login", loginLimit, h.Login)

	sec := rg.Group("")
	sec.Use(auth)
	sec.POST("/onboard", h.Onboard)
	sec.GET("/status/:email", h.Status)
	sec.POST("/logout", h.Logout)
}

// Login acquires the three-tier token bundle for the operator, requires the
// portal role and opens a Redis-backed session. The response carries a JWT
// whose sid claim references the session for cookie-less clients.
func (h *PortalHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	contract := req.Contract
	if contract == "" {
		contract = h.cfg.Contract.Name
	}
	region := req.Region
	if region == "" {
		region = h.cfg.Contract.Region
	}
	if contract == "" || region == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "contract and region required"})
		return
	}

	creds := identity.Credentials{
		Username: req.Username,
		Password: req.Password,
		Contract: contract,
		Region:   region,
	}
	res, err := h.authenticate(c.Request.Context(), region, creds)
	if err != nil {
		logger.Warnf("login failed for %s@%s: %v", req.Username, contract, err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}
	if !res.HasRole(PortalLoginRole) {
		c.JSON(http.StatusForbidden, gin.H{"error": "account lacks the portal operator role"})
		return
	}

	now := time.Now()
	sess := sessions.Session{
		Username:         req.Username,
		Contract:         contract,
		DomainID:         res.DomainID,
		Region:           region,
		DefaultProjectID: res.DefaultProjectID,
		RegionalToken:    res.RegionalToken,
		GlobalToken:      res.GlobalToken,
		CentralToken:     res.CentralToken,
		CreatedAt:        now,
		ExpiresAt:        now.Add(h.cfg.JWT.SessionTTL),
	}
	id, err := h.sessionsSvc.Create(c.Request.Context(), sess, h.cfg.JWT.SessionTTL)
	if err != nil {
		logger.Errorf("failed to create session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	access, err := tokens.GenerateAccessToken(h.cfg.JWT.Secret, id, req.Username, contract, h.cfg.JWT.AccessTokenTTL)
	if err != nil {
		logger.Errorf("failed to sign access token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign access token"})
		return
	}

	c.SetCookie(middleware.SessionCookie, id, int(h.cfg.JWT.SessionTTL.Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{
		"accessToken": access,
		"username":    req.Username,
		"contract":    contract,
		"region":      region,
		"expiresAt":   sess.ExpiresAt,
	})
}

// Onboard runs one provisioning pass under the caller's session tokens. The
// response is the full outcome including the generated password; this is
// the only place the password ever leaves the process.
func (h *PortalHandler) Onboard(c *gin.Context) {
	sess, ok := middleware.SessionFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		return
	}
	var req OnboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out := h.provision(c.Request.Context(), sess, req.Email, req.Project)
	code := http.StatusOK
	if out.Status != provision.StatusSuccess {
		if out.Reason == provision.ReasonMalformedEmail {
			code = http.StatusBadRequest
		} else {
			code = http.StatusBadGateway
		}
	}
	c.JSON(code, out)
}

// Status returns the last recorded provisioning state for an email. It
// never includes the password, which is not persisted anywhere.
func (h *PortalHandler) Status(c *gin.Context) {
	email := c.Param("email")
	entry, err := h.reports.Get(c.Request.Context(), email)
	if err != nil {
		if errors.Is(err, report.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no provisioning record for " + email})
			return
		}
		logger.Errorf("status lookup failed for %s: %v", email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status lookup failed"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

// Logout drops the session and clears the cookie.
func (h *PortalHandler) Logout(c *gin.Context) {
	sess, ok := middleware.SessionFrom(c)
	if ok {
		if err := h.sessionsSvc.Delete(c.Request.Context(), sess.ID); err != nil {
			logger.Warnf("failed to delete session %s: %v", sess.ID, err)
		}
	}
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}

func (h *PortalHandler) backendLogin(ctx context.Context, region string, creds identity.Credentials) (*identity.AuthResult, error) {
	ep := identity.EndpointsFor(h.cfg.Identity, region)
	auth := identity.NewAuthenticator(ep, &http.Client{Timeout: h.cfg.Identity.RequestTimeout})
	return auth.Login(ctx, creds)
}

func (h *PortalHandler) backendProvision(ctx context.Context, sess *sessions.Session, email, project string) provision.Outcome {
	ep := identity.EndpointsFor(h.cfg.Identity, sess.Region)
	tok := identity.TokenSet{
		Regional: sess.RegionalToken,
		Global:   sess.GlobalToken,
		Central:  sess.CentralToken,
	}
	gw := identity.NewClient(ep, sess.DomainID, tok, &http.Client{Timeout: h.cfg.Identity.RequestTimeout})
	orch := provision.NewOrchestrator(gw, sess.Contract).
		WithRecorder(h.reports).
		WithRoles(h.cfg.Provision.MemberRole, h.cfg.Provision.AdminRole).
		WithRetryPolicy(h.cfg.Provision.SyncRetries, h.cfg.Provision.SyncDelay)
	return orch.Run(ctx, email, project)
}
