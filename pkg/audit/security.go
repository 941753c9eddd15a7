// Package audit provides security audit logging for SIEM consumption.
// Events are logged as structured JSON on the "security_audit" logger.
package audit

import (
	"encoding/json"
	"time"

	libinjection "github.com/corazawaf/libinjection-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/estimate-engine/pkg/models"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSuspiciousInput is logged when stored text looks like SQL injection or XSS.
	EventSuspiciousInput SecurityEventType = "suspicious_input"
	// EventAccessDenied is logged when a role-based check rejects an operation.
	EventAccessDenied SecurityEventType = "access_denied"
)

// SecurityEvent is an auditable event with the context needed for SIEM analysis.
type SecurityEvent struct {
	Timestamp    time.Time         `json:"timestamp"`
	EventType    SecurityEventType `json:"event_type"`
	UserID       uuid.UUID         `json:"user_id"`
	Role         models.Role       `json:"role"`
	ResourceType string            `json:"resource_type"`
	ResourceID   uuid.UUID         `json:"resource_id"`
	Details      any               `json:"details"`
	Severity     string            `json:"severity"` // info, warning, critical
}

// InputFinding describes one suspicious input value.
type InputFinding struct {
	Field       string `json:"field"`
	Kind        string `json:"kind"` // sqli or xss
	Fingerprint string `json:"fingerprint,omitempty"`
	Value       string `json:"value"`
}

// maxLoggedValue bounds how much of an offending value ends up in the logs.
const maxLoggedValue = 256

// CheckInput runs libinjection over value. Returns nil when nothing matches.
func CheckInput(field, value string) *InputFinding {
	if value == "" {
		return nil
	}

	logged := value
	if len(logged) > maxLoggedValue {
		logged = logged[:maxLoggedValue]
	}

	if isSQLi, fingerprint := libinjection.IsSQLi(value); isSQLi {
		return &InputFinding{Field: field, Kind: "sqli", Fingerprint: string(fingerprint), Value: logged}
	}
	if libinjection.IsXSS(value) {
		return &InputFinding{Field: field, Kind: "xss", Value: logged}
	}
	return nil
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a security auditor on the "security_audit" logger.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// InspectCellInput checks the text written to a cell and logs a warning per
// suspicious field. The write is never blocked: cell values are stored and
// rendered as plain text. Returns the findings.
func (a *SecurityAuditor) InspectCellInput(principal models.Principal, cellID uuid.UUID, fields map[string]*string) []*InputFinding {
	var findings []*InputFinding
	for name, value := range fields {
		if value == nil {
			continue
		}
		if f := CheckInput(name, *value); f != nil {
			findings = append(findings, f)
		}
	}
	if len(findings) == 0 {
		return nil
	}

	event := SecurityEvent{
		Timestamp:    time.Now().UTC(),
		EventType:    EventSuspiciousInput,
		UserID:       principal.ID,
		Role:         principal.Role,
		ResourceType: "cell",
		ResourceID:   cellID,
		Details:      findings,
		Severity:     "warning",
	}
	eventJSON, _ := json.Marshal(event)

	for _, f := range findings {
		a.logger.Warn("Suspicious cell input",
			zap.String("event_json", string(eventJSON)),
			zap.String("cell_id", cellID.String()),
			zap.String("user_id", principal.ID.String()),
			zap.String("field", f.Field),
			zap.String("kind", f.Kind),
			zap.String("fingerprint", f.Fingerprint),
			zap.String("severity", "warning"),
		)
	}
	return findings
}

// LogAccessDenied records a role-based rejection. Workspace-level misses are
// not logged here since they are reported to the caller as not found.
func (a *SecurityAuditor) LogAccessDenied(principal models.Principal, resourceType string, resourceID uuid.UUID, operation string) {
	event := SecurityEvent{
		Timestamp:    time.Now().UTC(),
		EventType:    EventAccessDenied,
		UserID:       principal.ID,
		Role:         principal.Role,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      map[string]string{"operation": operation},
		Severity:     "info",
	}
	eventJSON, _ := json.Marshal(event)

	a.logger.Info("Access denied",
		zap.String("event_json", string(eventJSON)),
		zap.String("user_id", principal.ID.String()),
		zap.String("role", string(principal.Role)),
		zap.String("resource_type", resourceType),
		zap.String("resource_id", resourceID.String()),
		zap.String("operation", operation),
		zap.String("severity", "info"),
	)
}
