// Package clock abstracts time so services can be tested against a fixed
// instant instead of the wall clock.
package clock

import (
	"context"
	"time"
)

type Clock interface {
	Now(ctx context.Context) time.Time
}
