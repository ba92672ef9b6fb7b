package service

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/otikev/health-app/internal/domain"
)

var ErrForbidden = errors.New("forbidden: insufficient permissions")

type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

type AuditEntry struct {
	UserID       uuid.UUID
	UserRole     domain.Role
	Action       domain.AuditAction
	ResourceType string
	ResourceID   string
	IPAddress    string
	RequestID    string
	Changes      string
}

func auditEntry(caller domain.Caller, action domain.AuditAction, resourceType, resourceID string) AuditEntry {
	return AuditEntry{
		UserID:       caller.UserID,
		UserRole:     caller.Role,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    caller.IP,
		RequestID:    caller.RequestID,
	}
}
