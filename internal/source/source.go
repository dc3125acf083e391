// Package source holds the reading sources that feed the store: the demo
// simulator, an MQTT subscriber and GPIO contact sensors.
package source

import "context"

// Source produces readings until ctx is cancelled. Run returns nil on
// cancellation and an error only when the source cannot start.
type Source interface {
	Name() string
	Run(ctx context.Context) error
}
