package storage

import (
	"fmt"
	"strings"

	serrors "git.home.luguber.info/inful/artifactstore/internal/errors"
)

// ScopeType is the resource-ownership dimension used for access control and
// key namespacing.
type ScopeType string

const (
	ScopeEvents    ScopeType = "events"
	ScopeJobs      ScopeType = "jobs"
	ScopePipelines ScopeType = "pipelines"

	// ScopeNone marks flat namespaces (builds, commands) whose keys carry
	// a composite identifier instead of a scope segment.
	ScopeNone ScopeType = "none"
)

// escaper replaces characters that S3 and URL parsers treat specially.
// The replacement is deterministic; it is not required to be invertible.
var escaper = strings.NewReplacer("?", "~", "&", "~", "#", "~", "%", "~")

// ValidScope reports whether s is a recognized scope type.
func ValidScope(s ScopeType) bool {
	switch s {
	case ScopeEvents, ScopeJobs, ScopePipelines, ScopeNone:
		return true
	}
	return false
}

// EscapePath strips leading/trailing slashes and replaces reserved
// characters so the result is safe as a flat object-store key component.
func EscapePath(p string) string {
	return escaper.Replace(strings.Trim(p, "/"))
}

// DeriveKey produces the canonical storage key for a scoped object.
// Pure function: two logically distinct objects never collide, and
// identical inputs always yield identical keys.
//
//	caches  -> {segment}/{scopeType}/{scopeID}/{objectPath}
//	builds  -> builds/{compositeID}           (scopeType none)
//	commands-> commands/{compositeID}         (scopeType none)
func DeriveKey(segment Segment, scope ScopeType, scopeID, objectPath string) (string, error) {
	if !ValidScope(scope) {
		return "", serrors.New(serrors.CategoryValidation, serrors.SeverityInfo, "unrecognized scope type").
			WithContext("scope", string(scope))
	}
	path := EscapePath(objectPath)
	if path == "" {
		return "", serrors.New(serrors.CategoryValidation, serrors.SeverityInfo, "empty object path")
	}
	if scope == ScopeNone {
		return fmt.Sprintf("%s/%s", segment, path), nil
	}
	if scopeID == "" {
		return "", serrors.New(serrors.CategoryValidation, serrors.SeverityInfo, "empty scope id").
			WithContext("scope", string(scope))
	}
	return fmt.Sprintf("%s/%s/%s/%s", segment, scope, scopeID, path), nil
}

// DerivePrefix produces the key prefix covering every object under a scope,
// used for bulk invalidation.
func DerivePrefix(segment Segment, scope ScopeType, scopeID string) (string, error) {
	if !ValidScope(scope) || scope == ScopeNone {
		return "", serrors.New(serrors.CategoryValidation, serrors.SeverityInfo, "unrecognized scope type").
			WithContext("scope", string(scope))
	}
	if scopeID == "" {
		return "", serrors.New(serrors.CategoryValidation, serrors.SeverityInfo, "empty scope id").
			WithContext("scope", string(scope))
	}
	return fmt.Sprintf("%s/%s/%s/", segment, scope, scopeID), nil
}
