package sessions

import "time"

// Session is one authenticated portal login: the contract facts and the
// identity-backend token bundle every provisioning request under this
// session reuses.
type Session struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Contract         string    `json:"contract"`
	DomainID         string    `json:"domainId"`
	Region           string    `json:"region"`
	DefaultProjectID string    `json:"defaultProjectId"`
	RegionalToken    string    `json:"regionalToken"`
	GlobalToken      string    `json:"globalToken"`
	CentralToken     string    `json:"centralToken"`
	CreatedAt        time.Time `json:"createdAt"`
	ExpiresAt        time.Time `json:"expiresAt"`
}
