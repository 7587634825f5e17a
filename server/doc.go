// Package server implements the authorization server logic.
//
// Server is transport-agnostic. It exposes the three protocol entry points
// and a few management operations, and keeps every piece of mutable state in
// a storage.Storage:
//
//   - Authorize validates a request and either asks for the resource owner's
//     approval or redirects with an authorization code (query) or an access
//     token (fragment).
//   - Approve records the owner's decision and authorizes again with the
//     approved scope.
//   - Token redeems authorization codes and refresh tokens and answers the
//     validate_bearer grant.
//   - VerifyBearer checks tokens presented to protected resources.
//
// Errors tell the caller how to deliver them. A *ResourceOwnerError is shown
// to the user, a *ClientError is redirected to the client, a *TokenError is
// the JSON body of a token response and a *VerifyError belongs in a
// WWW-Authenticate challenge. Anything else is a storage failure.
//
// Example usage:
//
//	store := memory.New()
//	defer store.Stop()
//
//	srv, err := server.New(store, &server.Config{
//	    SupportedScopes: []string{"profile", "read"},
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := srv.Authorize(ctx, owner, server.AuthorizeRequest{
//	    ClientID:     "webapp1",
//	    ResponseType: "code",
//	    Scope:        "read",
//	})
package server
