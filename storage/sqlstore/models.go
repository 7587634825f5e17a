package sqlstore

import (
	"github.com/uptrace/bun"

	"github.com/giantswarm/oauth-server/storage"
)

type clientRecord struct {
	bun.BaseModel `bun:"table:oauth_clients,alias:c"`

	ID          string `bun:"id,pk,type:varchar(255)"`
	Name        string `bun:"name,notnull"`
	Description string `bun:"description,notnull"`
	Type        string `bun:"type,notnull"`
	RedirectURI string `bun:"redirect_uri,notnull"`
	SecretHash  string `bun:"secret_hash,notnull"`
	Registered  bool   `bun:"registered,notnull"`
}

func (r *clientRecord) toDomain() *storage.Client {
	return &storage.Client{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Type:        storage.ClientType(r.Type),
		RedirectURI: r.RedirectURI,
		SecretHash:  r.SecretHash,
		Registered:  r.Registered,
	}
}

type approvalRecord struct {
	bun.BaseModel `bun:"table:oauth_approvals,alias:a"`

	ClientID        string `bun:"client_id,pk,type:varchar(255)"`
	ResourceOwnerID string `bun:"resource_owner_id,pk,type:varchar(255)"`
	Scope           string `bun:"scope,notnull"`
}

func (r *approvalRecord) toDomain() *storage.Approval {
	return &storage.Approval{ClientID: r.ClientID, ResourceOwnerID: r.ResourceOwnerID, Scope: r.Scope}
}

type codeRecord struct {
	bun.BaseModel `bun:"table:oauth_authorization_codes,alias:ac"`

	Code            string `bun:"code,pk,type:varchar(255)"`
	RedirectURI     string `bun:"redirect_uri,pk,type:varchar(512)"`
	ResourceOwnerID string `bun:"resource_owner_id,notnull"`
	IssueTime       int64  `bun:"issue_time,notnull"`
	ClientID        string `bun:"client_id,notnull"`
	Scope           string `bun:"scope,notnull"`
}

func (r *codeRecord) toDomain() *storage.AuthorizationCode {
	return &storage.AuthorizationCode{
		Code:            r.Code,
		ResourceOwnerID: r.ResourceOwnerID,
		IssueTime:       r.IssueTime,
		ClientID:        r.ClientID,
		RedirectURI:     r.RedirectURI,
		Scope:           r.Scope,
	}
}

type accessTokenRecord struct {
	bun.BaseModel `bun:"table:oauth_access_tokens,alias:at"`

	Token           string `bun:"token,pk,type:varchar(255)"`
	IssueTime       int64  `bun:"issue_time,notnull"`
	ExpiresAt       int64  `bun:"expires_at,notnull"`
	ClientID        string `bun:"client_id,notnull"`
	ResourceOwnerID string `bun:"resource_owner_id,notnull"`
	Scope           string `bun:"scope,notnull"`
	ExpiresIn       int64  `bun:"expires_in,notnull"`
	TokenType       string `bun:"token_type,notnull"`
}

func (r *accessTokenRecord) toDomain() *storage.AccessToken {
	return &storage.AccessToken{
		Token:           r.Token,
		IssueTime:       r.IssueTime,
		ClientID:        r.ClientID,
		ResourceOwnerID: r.ResourceOwnerID,
		Scope:           r.Scope,
		ExpiresIn:       r.ExpiresIn,
		TokenType:       r.TokenType,
	}
}

type refreshTokenRecord struct {
	bun.BaseModel `bun:"table:oauth_refresh_tokens,alias:rt"`

	Token           string `bun:"token,pk,type:varchar(255)"`
	ClientID        string `bun:"client_id,notnull"`
	ResourceOwnerID string `bun:"resource_owner_id,notnull"`
	Scope           string `bun:"scope,notnull"`
}

func (r *refreshTokenRecord) toDomain() *storage.RefreshToken {
	return &storage.RefreshToken{
		Token:           r.Token,
		ClientID:        r.ClientID,
		ResourceOwnerID: r.ResourceOwnerID,
		Scope:           r.Scope,
	}
}

var models = []any{
	(*clientRecord)(nil),
	(*approvalRecord)(nil),
	(*codeRecord)(nil),
	(*accessTokenRecord)(nil),
	(*refreshTokenRecord)(nil),
}
