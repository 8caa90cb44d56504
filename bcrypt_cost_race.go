//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// Race enabled builds drop to the library default cost so suites with strict
// timeouts can still exercise the full login path.
func passwordHashCost() int {
	return bcrypt.DefaultCost
}
