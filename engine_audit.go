package mobiauth

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventChallengeIssued    = "challenge_issued"
	auditEventChallengeFailure   = "challenge_failure"
	auditEventOTPVerifySuccess   = "otp_verify_success"
	auditEventOTPVerifyFailure   = "otp_verify_failure"
	auditEventLoginSuccess       = "login_success"
	auditEventLoginFailure       = "login_failure"
	auditEventLogoutSession      = "logout_session"
	auditEventLogoutAll          = "logout_all"
	auditEventSessionRevoked     = "session_revoked"
	auditEventEnforcementFailure = "enforcement_failure"
)

// AuditErrorCode is the stable machine-readable error tag attached to
// failed audit events.
type AuditErrorCode string

const (
	auditErrCredentialNotFound AuditErrorCode = "credential_not_found"
	auditErrChallengeNotFound  AuditErrorCode = "challenge_not_found"
	auditErrCodeMismatch       AuditErrorCode = "code_mismatch"
	auditErrCredentialConflict AuditErrorCode = "credential_conflict"
	auditErrChannelUnsupported AuditErrorCode = "channel_unsupported"
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	address string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		Address:   address,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCredentialNotFound):
		return auditErrCredentialNotFound
	case errors.Is(err, ErrChallengeNotFound):
		return auditErrChallengeNotFound
	case errors.Is(err, ErrCodeMismatch):
		return auditErrCodeMismatch
	case errors.Is(err, ErrCredentialConflict):
		return auditErrCredentialConflict
	case errors.Is(err, ErrUnsupportedChannel):
		return auditErrChannelUnsupported
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrCredentialUnavailable), errors.Is(err, ErrChallengeUnavailable), errors.Is(err, ErrSessionUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
