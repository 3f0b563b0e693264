package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cloudidm/onboard/internal/config"
	"github.com/cloudidm/onboard/internal/provision"
)

// Endpoints locates the three tiers of the identity backend. Regional and
// Global are Keystone-style API bases including the /v3 suffix; CentralAuth
// and CentralAPI belong to the central user portal.
type Endpoints struct {
	Regional    string
	Global      string
	CentralAuth string
	CentralAPI  string
}

// EndpointsFor expands the configured templates for one region. The global
// tier is the same API under the fixed global region label.
func EndpointsFor(cfg config.IdentityConfig, region string) Endpoints {
	return Endpoints{
		Regional:    fmt.Sprintf(cfg.RegionalTemplate, region),
		Global:      fmt.Sprintf(cfg.RegionalTemplate, cfg.GlobalRegion),
		CentralAuth: cfg.CentralAuthURL,
		CentralAPI:  cfg.CentralAPIURL,
	}
}

// TokenSet carries the three scoped tokens one provisioning run needs:
// regional for listings and project-scope calls, global for group calls,
// central for user creation on the authentication portal.
type TokenSet struct {
	Regional string
	Global   string
	Central  string
}

// Client implements provision.Gateway against the identity backend. All
// calls are scoped to one contract (domain) and one region.
type Client struct {
	hc       *http.Client
	ep       Endpoints
	domainID string
	tokens   TokenSet
}

func NewClient(ep Endpoints, domainID string, tokens TokenSet, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{hc: hc, ep: ep, domainID: domainID, tokens: tokens}
}

var _ provision.Gateway = (*Client)(nil)

// List fetches the named collection under the contract from the regional
// tier. The backend wraps the entries under a key equal to the kind.
func (c *Client) List(ctx context.Context, kind provision.Kind) ([]provision.Object, error) {
	u := fmt.Sprintf("%s/%s?domain_id=%s", c.ep.Regional, kind, url.QueryEscape(c.domainID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	req.Header.Set("X-Auth-Token", c.tokens.Regional)
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list %s: status %d", kind, resp.StatusCode)
	}
	var body map[string][]provision.Object
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("list %s: decode: %w", kind, err)
	}
	entries, ok := body[string(kind)]
	if !ok {
		return nil, fmt.Errorf("list %s: malformed listing", kind)
	}
	return entries, nil
}

// CreateUser registers the subject on the central authentication portal.
func (c *Client) CreateUser(ctx context.Context, s provision.Subject) provision.CallResult {
	payload := map[string]string{
		"user_last_name":   s.LastName,
		"user_first_name":  s.FirstName,
		"login_id":         s.Username,
		"user_description": "Automated account setup",
		"mailaddress":      s.Email,
		"user_status":      "1",
		"password":         s.Password,
		"language_code":    "en",
		"role_code":        "01",
	}
	req, err := c.jsonRequest(ctx, http.MethodPost, c.ep.CentralAPI+"/users", payload)
	if err != nil {
		return provision.TransportFailure(err)
	}
	req.Header.Set("Token", c.tokens.Central)
	return c.do(req, http.StatusOK, http.StatusCreated)
}

// CreateProject creates a project under the contract on the regional tier.
func (c *Client) CreateProject(ctx context.Context, name string) provision.CallResult {
	payload := map[string]interface{}{
		"project": map[string]interface{}{
			"description": "Programmatically created project",
			"domain_id":   c.domainID,
			"enabled":     true,
			"is_domain":   false,
			"name":        name,
		},
	}
	u := fmt.Sprintf("%s/projects?domain_id=%s", c.ep.Regional, url.QueryEscape(c.domainID))
	req, err := c.jsonRequest(ctx, http.MethodPost, u, payload)
	if err != nil {
		return provision.TransportFailure(err)
	}
	req.Header.Set("X-Auth-Token", c.tokens.Regional)
	return c.do(req, http.StatusCreated)
}

// CreateGroup creates a group on the global tier and returns the name the
// backend assigned.
func (c *Client) CreateGroup(ctx context.Context, name string) (string, error) {
	payload := map[string]interface{}{
		"group": map[string]interface{}{
			"description": "Auto-generated project admin group",
			"domain_id":   c.domainID,
			"name":        name,
		},
	}
	req, err := c.jsonRequest(ctx, http.MethodPost, c.ep.Global+"/groups", payload)
	if err != nil {
		return "", fmt.Errorf("create group: %w", err)
	}
	req.Header.Set("X-Auth-Token", c.tokens.Global)

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("create group: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("create group: status %d", resp.StatusCode)
	}
	var body struct {
		Group struct {
			Name string `json:"name"`
		} `json:"group"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("create group: decode: %w", err)
	}
	return body.Group.Name, nil
}

// AssignRoleToUser binds (user, project, role) on the regional tier. Names
// are resolved against fresh listings; a name not yet visible resolves to a
// rejected 404, which is what the synchronization retry policy keys on.
func (c *Client) AssignRoleToUser(ctx context.Context, username, project, role string) provision.CallResult {
	uid, res := c.resolve(ctx, provision.KindUsers, username)
	if !res.OK() {
		return res
	}
	pid, res := c.resolve(ctx, provision.KindProjects, project)
	if !res.OK() {
		return res
	}
	rid, res := c.resolve(ctx, provision.KindRoles, role)
	if !res.OK() {
		return res
	}
	u := fmt.Sprintf("%s/projects/%s/users/%s/roles/%s", c.ep.Regional, pid, uid, rid)
	return c.put(ctx, u, c.tokens.Regional)
}

// AssignRoleToGroup binds (group, project, role) on the regional tier.
func (c *Client) AssignRoleToGroup(ctx context.Context, group, project, role string) provision.CallResult {
	gid, res := c.resolve(ctx, provision.KindGroups, group)
	if !res.OK() {
		return res
	}
	pid, res := c.resolve(ctx, provision.KindProjects, project)
	if !res.OK() {
		return res
	}
	rid, res := c.resolve(ctx, provision.KindRoles, role)
	if !res.OK() {
		return res
	}
	u := fmt.Sprintf("%s/projects/%s/groups/%s/roles/%s", c.ep.Regional, pid, gid, rid)
	return c.put(ctx, u, c.tokens.Regional)
}

// AssignUserToGroup binds the user into the group. Memberships live on the
// global tier but the names resolve through the regional listings, so a
// user created moments ago may legitimately not resolve yet.
func (c *Client) AssignUserToGroup(ctx context.Context, username, group string) provision.CallResult {
	uid, res := c.resolve(ctx, provision.KindUsers, username)
	if !res.OK() {
		return res
	}
	gid, res := c.resolve(ctx, provision.KindGroups, group)
	if !res.OK() {
		return res
	}
	u := fmt.Sprintf("%s/groups/%s/users/%s", c.ep.Global, gid, uid)
	return c.put(ctx, u, c.tokens.Global)
}

// resolve looks a name up in a fresh listing, folding absence into a 404
// rejection so callers can treat it like any other retryable status.
func (c *Client) resolve(ctx context.Context, kind provision.Kind, name string) (string, provision.CallResult) {
	objs, err := c.List(ctx, kind)
	if err != nil {
		return "", provision.TransportFailure(err)
	}
	id, ok := provision.FindID(objs, name)
	if !ok {
		return "", provision.Rejected(http.StatusNotFound)
	}
	return id, provision.Succeeded(http.StatusOK)
}

func (c *Client) jsonRequest(ctx context.Context, method, u string, payload interface{}) (*http.Request, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) put(ctx context.Context, u, token string) provision.CallResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, nil)
	if err != nil {
		return provision.TransportFailure(err)
	}
	req.Header.Set("X-Auth-Token", token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req, http.StatusNoContent)
}

// do executes the request and folds the response status against the
// expected success codes.
func (c *Client) do(req *http.Request, want ...int) provision.CallResult {
	resp, err := c.hc.Do(req)
	if err != nil {
		return provision.TransportFailure(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	for _, w := range want {
		if resp.StatusCode == w {
			return provision.Succeeded(resp.StatusCode)
		}
	}
	return provision.Rejected(resp.StatusCode)
}
