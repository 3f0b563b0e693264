package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Credentials are the contract-admin login details the portal collects.
type Credentials struct {
	Username string
	Password string
	Contract string
	Region   string
}

// AuthResult is the token bundle plus the contract facts the login
// responses expose: the domain id and the default project id scoped into
// the regional token.
type AuthResult struct {
	RegionalToken    string
	GlobalToken      string
	CentralToken     string
	DomainID         string
	DefaultProjectID string
	Roles            []string
}

func (a *AuthResult) HasRole(name string) bool {
	for _, r := range a.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// Authenticator acquires the three tokens a provisioning session needs.
type Authenticator struct {
	hc *http.Client
	ep Endpoints
}

func NewAuthenticator(ep Endpoints, hc *http.Client) *Authenticator {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Authenticator{hc: hc, ep: ep}
}

// Login performs the three-step token acquisition: regional unscoped token
// (which reveals domain id, default project id and role names), globally
// scoped token for the group tier, central portal token for user creation.
func (a *Authenticator) Login(ctx context.Context, creds Credentials) (*AuthResult, error) {
	out := &AuthResult{}

	regional, body, err := a.passwordToken(ctx, a.ep.Regional, creds, "")
	if err != nil {
		return nil, fmt.Errorf("regional token: %w", err)
	}
	out.RegionalToken = regional
	out.DomainID = body.Token.Project.Domain.ID
	out.DefaultProjectID = body.Token.Project.ID
	for _, r := range body.Token.Roles {
		out.Roles = append(out.Roles, r.Name)
	}
	if out.DomainID == "" || out.DefaultProjectID == "" {
		return nil, errors.New("regional token: response missing project or domain scope")
	}

	global, _, err := a.passwordToken(ctx, a.ep.Global, creds, out.DefaultProjectID)
	if err != nil {
		return nil, fmt.Errorf("global token: %w", err)
	}
	out.GlobalToken = global

	central, err := a.centralToken(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("central token: %w", err)
	}
	out.CentralToken = central

	return out, nil
}

// tokenBody is the part of a Keystone-style token response the portal uses.
type tokenBody struct {
	Token struct {
		Project struct {
			ID     string `json:"id"`
			Domain struct {
				ID string `json:"id"`
			} `json:"domain"`
		} `json:"project"`
		Roles []struct {
			Name string `json:"name"`
		} `json:"roles"`
	} `json:"token"`
}

// passwordToken posts a password authentication to base/auth/tokens and
// returns the X-Subject-Token header. With a non-empty projectID the token
// is scoped to that project.
func (a *Authenticator) passwordToken(ctx context.Context, base string, creds Credentials, projectID string) (string, *tokenBody, error) {
	auth := map[string]interface{}{
		"identity": map[string]interface{}{
			"methods": []string{"password"},
			"password": map[string]interface{}{
				"user": map[string]interface{}{
					"domain":   map[string]string{"name": creds.Contract},
					"name":     creds.Username,
					"password": creds.Password,
				},
			},
		},
	}
	if projectID != "" {
		auth["scope"] = map[string]interface{}{
			"project": map[string]string{"id": projectID},
		}
	}
	b, err := json.Marshal(map[string]interface{}{"auth": auth})
	if err != nil {
		return "", nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/auth/tokens", bytes.NewReader(b))
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.hc.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	token := resp.Header.Get("X-Subject-Token")
	if token == "" {
		return "", nil, errors.New("response missing X-Subject-Token header")
	}
	var body tokenBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", nil, fmt.Errorf("decode: %w", err)
	}
	return token, &body, nil
}

// centralToken authenticates against the central portal, which uses the
// contract number instead of a domain scope and answers with X-Access-Token.
func (a *Authenticator) centralToken(ctx context.Context, creds Credentials) (string, error) {
	payload := map[string]interface{}{
		"auth": map[string]interface{}{
			"identity": map[string]interface{}{
				"password": map[string]interface{}{
					"user": map[string]string{
						"contract_number": creds.Contract,
						"name":            creds.Username,
						"password":        creds.Password,
					},
				},
			},
		},
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.ep.CentralAuth, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	token := resp.Header.Get("X-Access-Token")
	if token == "" {
		return "", errors.New("response missing X-Access-Token header")
	}
	return token, nil
}
