package auth

import "embed"

//go:embed data/sql/migrations
var migrationsFS embed.FS

//go:embed data/sql/policies
var policiesFS embed.FS

// GetMigrationsFS exposes the embedded SQL migrations so host applications
// can register them with their own bun migrator.
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// GetPoliciesFS exposes the row level security policies that back the
// security context on postgres. They are migration formatted so postgres
// hosts register them as a second set; engines without row level security
// skip them.
func GetPoliciesFS() embed.FS {
	return policiesFS
}
