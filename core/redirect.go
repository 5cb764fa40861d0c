package core

import (
	"net/url"
	"strings"
)

// ResolveLoginRedirect picks where a freshly authenticated client goes:
//  1. admins go to agenda management, and any pending return URL is discarded;
//  2. otherwise a pending return URL is used once and cleared;
//  3. otherwise the profile page.
func ResolveLoginRedirect(sm *SessionManager, s *Session, id Identity) string {
	if id.Role.IsAdmin() {
		sm.ClearPendingReturnURL(s)
		return PathManageAgenda
	}
	if u, ok := sm.ConsumePendingReturnURL(s); ok && isLocalPath(u) {
		return u
	}
	return PathProfile
}

// isLocalPath accepts only same-origin absolute paths such as "/stades?x=1".
func isLocalPath(u string) bool {
	if !strings.HasPrefix(u, "/") || strings.HasPrefix(u, "//") || strings.HasPrefix(u, "/\\") {
		return false
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	return parsed.Scheme == "" && parsed.Host == ""
}
