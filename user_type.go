package auth

// IsValid checks if the type is one of the predefined account types
func IsValidUserType(t UserType) bool {
	switch t {
	case UserTypeCentre, UserTypeJury, UserTypeAdmin:
		return true
	default:
		return false
	}
}

// IsAdminType reports whether the type bypasses the maintenance gate
func IsAdminType(t UserType) bool {
	return t == UserTypeAdmin
}

// DashboardPath maps an account type to its post login landing route
func DashboardPath(t UserType) string {
	switch t {
	case UserTypeAdmin:
		return "/admin"
	case UserTypeJury:
		return "/jury/dashboard"
	case UserTypeCentre:
		return "/centre/dashboard"
	default:
		return "/"
	}
}

// GetAllUserTypes returns all predefined account types
func GetAllUserTypes() []UserType {
	return []UserType{
		UserTypeCentre,
		UserTypeJury,
		UserTypeAdmin,
	}
}

// userTypeRank orders account types for least-privilege comparisons. Unknown
// types rank below every valid type.
func userTypeRank(t UserType) int {
	switch t {
	case UserTypeAdmin:
		return 3
	case UserTypeJury:
		return 2
	case UserTypeCentre:
		return 1
	default:
		return 0
	}
}

// ParseUserType safely parses a string into a UserType
func ParseUserType(raw string) (UserType, bool) {
	t := UserType(raw)
	return t, IsValidUserType(t)
}
