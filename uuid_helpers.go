package auth

// HasUserUUID reports whether the session subject parses as a UUID. Sessions
// minted before the UUID migration carry opaque subjects and fail this check.
func HasUserUUID(session Session) bool {
	if session == nil {
		return false
	}
	if _, err := session.GetUserUUID(); err != nil {
		return false
	}
	return true
}
