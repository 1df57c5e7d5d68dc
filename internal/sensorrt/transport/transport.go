// Package transport implements the sensor's one capability trait with three
// implementations: a TCP-socket client for development/management-console
// use, a tunnelled-over-callback client standing in for the LoRaWAN radio
// boundary, and a capturing in-memory mock for tests. Selection happens once
// at construction, never at runtime.
package transport

import "context"

// Transport is every capability the sensor runtime needs from whatever
// carries its tunnelled requests to the Bridge: send the framed bytes, get
// the framed response bytes back.
type Transport interface {
	// Exchange sends a single tunnelled request payload and returns the
	// Bridge's tunnelled response payload.
	Exchange(ctx context.Context, payload []byte) ([]byte, error)
	// Close releases any underlying connection resources.
	Close() error
}
