package bridgesession

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ResumeBackoff returns an exponential, capped spacing policy for successive
// Resume attempts. Nothing in the bridge calls it: startup makes a single
// Resume attempt per persisted session.
func ResumeBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0 // no elapsed-time bound; the policy itself never stops
	return b
}
