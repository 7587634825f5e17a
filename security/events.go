package security

// Event type constants for security audit logging.
const (
	// Issuance

	// EventAuthorizationCodeIssued is logged when an authorization code is issued
	EventAuthorizationCodeIssued = "authorization_code_issued"

	// EventImplicitTokenIssued is logged when an access token is delivered through the URL fragment
	EventImplicitTokenIssued = "implicit_token_issued" //nolint:gosec // event type name, not a credential

	// EventTokenIssued is logged when the token endpoint issues an access token
	EventTokenIssued = "token_issued" //nolint:gosec // event type name, not a credential

	// EventBearerValidated is logged when the validate_bearer grant reports a token
	EventBearerValidated = "bearer_validated"

	// Consent

	// EventApprovalGranted is logged when a resource owner approves a client
	EventApprovalGranted = "approval_granted"

	// EventApprovalDenied is logged when a resource owner denies a client
	EventApprovalDenied = "approval_denied"

	// EventApprovalRevoked is logged when a resource owner removes a standing approval
	EventApprovalRevoked = "approval_revoked"

	// Client administration

	// EventClientSaved is logged when a client registration is created or replaced
	EventClientSaved = "client_saved"

	// EventClientDeleted is logged when a client registration is removed
	EventClientDeleted = "client_deleted"

	// Security violations

	// EventAuthorizationCodeReuseDetected is logged when an already redeemed code is presented again
	EventAuthorizationCodeReuseDetected = "authorization_code_reuse_detected"

	// EventClientAuthFailure is logged when Basic authentication at the token endpoint fails
	EventClientAuthFailure = "client_auth_failure"

	// EventClientMismatch is logged when a grant is presented by a client other than its owner
	EventClientMismatch = "client_mismatch"

	// EventScopeEscalationAttempt is logged when a request asks for a scope it may not have
	EventScopeEscalationAttempt = "scope_escalation_attempt"

	// EventRateLimitExceeded is logged when a rate limit is exceeded
	EventRateLimitExceeded = "rate_limit_exceeded"
)
