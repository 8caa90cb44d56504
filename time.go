package auth

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// IsOutsideThresholdPeriod reports whether more than the given period has
// passed since the reference time. The period uses time.ParseDuration syntax.
func IsOutsideThresholdPeriod(since time.Time, period string) (bool, error) {
	d, err := time.ParseDuration(period)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid threshold period").
			WithMetadata(map[string]any{"period": period})
	}

	return time.Since(since) > d, nil
}
