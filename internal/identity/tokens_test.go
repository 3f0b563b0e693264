package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudidm/onboard/internal/config"
)

func tokenResponse(t *testing.T, w http.ResponseWriter, subjectToken string) {
	w.Header().Set("X-Subject-Token", subjectToken)
	w.WriteHeader(http.StatusCreated)
	err := json.NewEncoder(w).Encode(map[string]interface{}{
		"token": map[string]interface{}{
			"project": map[string]interface{}{
				"id":     "prj-default",
				"domain": map[string]string{"id": "dom-1"},
			},
			"roles": []map[string]string{{"name": "cpf_admin"}, {"name": "_member_"}},
		},
	})
	require.NoError(t, err)
}

func TestAuthenticatorLogin(t *testing.T) {
	regional := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/tokens", r.URL.Path)
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		auth := body["auth"].(map[string]interface{})
		require.Contains(t, auth, "identity")
		require.NotContains(t, auth, "scope", "regional token must be unscoped")
		tokenResponse(t, w, "regional-token")
	}))
	defer regional.Close()

	global := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		auth := body["auth"].(map[string]interface{})
		scope := auth["scope"].(map[string]interface{})
		project := scope["project"].(map[string]interface{})
		require.Equal(t, "prj-default", project["id"], "global token must scope to the default project")
		tokenResponse(t, w, "global-token")
	}))
	defer global.Close()

	central := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		auth := body["auth"].(map[string]interface{})
		identity := auth["identity"].(map[string]interface{})
		password := identity["password"].(map[string]interface{})
		user := password["user"].(map[string]interface{})
		require.Equal(t, "c-123", user["contract_number"])
		w.Header().Set("X-Access-Token", "central-token")
		w.WriteHeader(http.StatusOK)
	}))
	defer central.Close()

	a := NewAuthenticator(Endpoints{
		Regional:    regional.URL,
		Global:      global.URL,
		CentralAuth: central.URL,
	}, nil)

	got, err := a.Login(context.Background(), Credentials{
		Username: "admin", Password: "secret", Contract: "c-123", Region: "uk-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "regional-token", got.RegionalToken)
	assert.Equal(t, "global-token", got.GlobalToken)
	assert.Equal(t, "central-token", got.CentralToken)
	assert.Equal(t, "dom-1", got.DomainID)
	assert.Equal(t, "prj-default", got.DefaultProjectID)
	assert.True(t, got.HasRole("cpf_admin"))
	assert.False(t, got.HasRole("cpf_systemowner"))
}

func TestAuthenticatorLoginBadPassword(t *testing.T) {
	regional := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer regional.Close()

	a := NewAuthenticator(Endpoints{Regional: regional.URL}, nil)
	_, err := a.Login(context.Background(), Credentials{Username: "admin", Password: "wrong", Contract: "c-123"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "regional token")
}

func TestEndpointsFor(t *testing.T) {
	ep := EndpointsFor(config.IdentityConfig{
		RegionalTemplate: "https://identity.%s.example.test/v3",
		GlobalRegion:     "gls",
		CentralAuthURL:   "https://auth.example.test/token",
		CentralAPIURL:    "https://portal.example.test/API/v1",
	}, "uk-1")
	assert.Equal(t, "https://identity.uk-1.example.test/v3", ep.Regional)
	assert.Equal(t, "https://identity.gls.example.test/v3", ep.Global)
	assert.Equal(t, "https://auth.example.test/token", ep.CentralAuth)
	assert.Equal(t, "https://portal.example.test/API/v1", ep.CentralAPI)
}
