// Package invalidation consumes service-change events from Kafka and drops
// the proxy's cached responses for the affected ArcGIS services.
package invalidation

import (
	"errors"
	"time"
)

// Event is one invalidation message. Either Keys names explicit cache
// entries to drop, or Service drops everything cached for that service.
// Version orders events per scope so replayed or out-of-order deliveries do
// not resurrect deletions.
type Event struct {
	Service string    `json:"service,omitempty"`
	Keys    []string  `json:"keys,omitempty"`
	Version uint64    `json:"version"`
	TS      time.Time `json:"ts"`
	Op      string    `json:"op,omitempty"`
}

func (e Event) Validate() error {
	if e.Service == "" && len(e.Keys) == 0 {
		return errors.New("invalidation event needs a service or explicit keys")
	}
	return nil
}
