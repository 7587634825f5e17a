package server

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/giantswarm/oauth-server/instrumentation"
	"github.com/giantswarm/oauth-server/scope"
	"github.com/giantswarm/oauth-server/security"
	"github.com/giantswarm/oauth-server/storage"
)

// Approve applies the resource owner's decision on a pending request.
//
// If the original request no longer needs approval its result is returned
// unchanged. Otherwise an "Approve" decision records the approved scope and
// the request is authorized again with the scope the owner agreed to; any
// other decision is an access_denied ClientError.
func (s *Server) Approve(ctx context.Context, owner ResourceOwner, req AuthorizeRequest, decision Decision) (*Result, error) {
	ctx, span := s.startSpan(ctx, "server.Approve")
	defer span.End()

	res, err := s.approve(ctx, owner, req, decision)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}

	instrumentation.AddOAuthFlowAttributes(span, res.Client.ID, owner.ID(), res.Scope)
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrAction, string(res.Action)))
	instrumentation.SetSpanSuccess(span)
	return res, nil
}

func (s *Server) approve(ctx context.Context, owner ResourceOwner, req AuthorizeRequest, decision Decision) (*Result, error) {
	res, err := s.authorize(ctx, owner, req)
	if err != nil {
		return nil, err
	}
	if res.Action != ActionAskApproval {
		return res, nil
	}
	client := res.Client

	if decision.Approval != ApprovalApprove {
		s.audit(ctx, security.Event{
			Type:            security.EventApprovalDenied,
			ResourceOwnerID: owner.ID(),
			ClientID:        client.ID,
		})
		if s.metrics != nil {
			s.metrics.RecordApproval(ctx, client.ID, false)
		}
		return nil, newClientError(ErrorCodeAccessDenied, "the resource owner denied the request", client, req)
	}

	if !scope.IsSubset(decision.Scope, res.Scope) {
		clientErr := newClientError(ErrorCodeInvalidScope, "approved scope must be a subset of the requested scope", client, req)
		clientErr.ShowOwner = true
		return nil, clientErr
	}
	granted, err := scope.Normalize(decision.Scope)
	if err != nil {
		return nil, err
	}

	if err := s.recordApproval(ctx, client.ID, owner.ID(), granted); err != nil {
		return nil, err
	}

	s.audit(ctx, security.Event{
		Type:            security.EventApprovalGranted,
		ResourceOwnerID: owner.ID(),
		ClientID:        client.ID,
		Details:         map[string]any{"scope": granted},
	})
	if s.metrics != nil {
		s.metrics.RecordApproval(ctx, client.ID, true)
	}

	next := req
	next.Scope = granted
	return s.authorize(ctx, owner, next)
}

// recordApproval adds granted to the stored approval of the pair. Approvals
// only grow. Concurrent approvals for one pair may lose a merge.
func (s *Server) recordApproval(ctx context.Context, clientID, ownerID, granted string) error {
	existing, err := s.store.GetApproval(ctx, clientID, ownerID)
	if storage.IsNotFound(err) {
		err = s.store.AddApproval(ctx, clientID, ownerID, granted)
		if !errors.Is(err, storage.ErrApprovalExists) {
			if err != nil {
				return fmt.Errorf("failed to add approval: %w", err)
			}
			return nil
		}
		// Lost a race with another approval; merge into the winner
		existing, err = s.store.GetApproval(ctx, clientID, ownerID)
	}
	if err != nil {
		return fmt.Errorf("failed to get approval: %w", err)
	}

	if scope.IsSubset(granted, existing.Scope) {
		return nil
	}
	merged, err := scope.Merge(existing.Scope, granted)
	if err != nil {
		return fmt.Errorf("failed to merge approval scope: %w", err)
	}
	if err := s.store.UpdateApproval(ctx, clientID, ownerID, merged); err != nil {
		return fmt.Errorf("failed to update approval: %w", err)
	}
	return nil
}
