// Package compressed implements the Bridge-side half of compressed-state
// negotiation: deciding when a successful response should be rewritten to
// signal a switch into (or a fall back out of) compressed mode.
package compressed

import "net/http"

// StatusAlreadyReported signals "request succeeded, and the Bridge now
// knows this sensor - you may omit the channel-id prefix from now on."
const StatusAlreadyReported = http.StatusAlreadyReported // 208

// StatusNotExtended signals "this compressed request needs state the
// Bridge does not have - resend uncompressed, with the channel-id."
const StatusNotExtended = http.StatusNotExtended // 510

// ErrStateUnknown is returned by Resolve when a compressed request's
// DevEUI cannot be mapped to a ChannelId.
type ErrStateUnknown struct {
	DevEUI string
}

func (e *ErrStateUnknown) Error() string {
	return "compressed: no known channel-id for DevEUI " + e.DevEUI
}

// ChannelLookup resolves a DevEUI to its ChannelId, as persisted by the
// LoraWanNode DAO.
type ChannelLookup interface {
	ChannelIDFor(devEUI string) (channelID string, known bool)
}

// Resolve determines the ChannelId a request should operate against.
//
// If the request already carries an explicit channelID (uncompressed
// mode), it is used as-is and channelIDKnownAlready reports whether the
// Bridge had already learned this DevEUI before this request (used by the
// finalize stage to decide whether to signal 208).
//
// If the request omits channelID (compressed mode), the mapping is looked
// up; a miss is reported as ErrStateUnknown so the caller can respond 510.
func Resolve(lookup ChannelLookup, devEUI, channelID string) (resolvedChannelID string, channelIDKnownAlready bool, err error) {
	if channelID != "" {
		_, known := lookup.ChannelIDFor(devEUI)
		return channelID, known, nil
	}

	resolved, known := lookup.ChannelIDFor(devEUI)
	if !known {
		return "", false, &ErrStateUnknown{DevEUI: devEUI}
	}
	return resolved, true, nil
}
