package oauth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/giantswarm/oauth-server/server"
)

// ErrNotAuthenticated is returned by a ResourceOwnerAuthenticator when the
// request carries no resource owner identity.
var ErrNotAuthenticated = errors.New("resource owner is not authenticated")

// ResourceOwnerAuthenticator identifies the end user behind an authorization
// request. Login itself is out of scope: implementations read an identity
// established elsewhere. hint is the login_hint query parameter and may be empty.
type ResourceOwnerAuthenticator interface {
	Authenticate(r *http.Request, hint string) (server.ResourceOwner, error)
}

// Default headers set by an authenticating reverse proxy
const (
	DefaultOwnerIDHeader   = "X-Remote-User"
	DefaultOwnerNameHeader = "X-Remote-Name"
)

// HeaderAuthenticator trusts identity headers set by an authenticating reverse
// proxy. The proxy must strip these headers from client requests.
type HeaderAuthenticator struct {
	// IDHeader carries the resource owner ID (default X-Remote-User)
	IDHeader string

	// NameHeader carries the display name (default X-Remote-Name)
	NameHeader string
}

// Authenticate implements ResourceOwnerAuthenticator. The hint is ignored: the
// proxy has already decided who the user is.
func (a HeaderAuthenticator) Authenticate(r *http.Request, _ string) (server.ResourceOwner, error) {
	idHeader := a.IDHeader
	if idHeader == "" {
		idHeader = DefaultOwnerIDHeader
	}
	nameHeader := a.NameHeader
	if nameHeader == "" {
		nameHeader = DefaultOwnerNameHeader
	}

	id := strings.TrimSpace(r.Header.Get(idHeader))
	if id == "" {
		return nil, ErrNotAuthenticated
	}
	name := strings.TrimSpace(r.Header.Get(nameHeader))
	if name == "" {
		name = id
	}
	return server.NewResourceOwner(id, name), nil
}

// StaticAuthenticator serves a fixed set of resource owners, for development
// and tests. The hint selects an owner by ID; without a matching hint the
// Default owner is used.
type StaticAuthenticator struct {
	Owners  map[string]server.ResourceOwner
	Default server.ResourceOwner
}

// NewStaticAuthenticator returns an authenticator knowing the given owners.
// The first owner is the default.
func NewStaticAuthenticator(owners ...server.ResourceOwner) *StaticAuthenticator {
	a := &StaticAuthenticator{Owners: make(map[string]server.ResourceOwner, len(owners))}
	for _, o := range owners {
		a.Owners[o.ID()] = o
		if a.Default == nil {
			a.Default = o
		}
	}
	return a
}

// Authenticate implements ResourceOwnerAuthenticator
func (a *StaticAuthenticator) Authenticate(_ *http.Request, hint string) (server.ResourceOwner, error) {
	if o, ok := a.Owners[hint]; ok {
		return o, nil
	}
	if a.Default == nil {
		return nil, ErrNotAuthenticated
	}
	return a.Default, nil
}
