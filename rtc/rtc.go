// Package rtc is the stateless voice-signaling relay. Offers, answers and
// ICE candidates are forwarded to the addressed participant only, the hub
// never stores them. Media itself is negotiated peer-to-peer.
package rtc

import "github.com/tcriess/lightspeed-tabletop/types"

// PeersToOffer is the single source of truth for the offer-initiator rule:
// the newly joined participant initiates an offer to every already-connected
// participant. The joiner therefore never receives an offer for its own
// join, which avoids the race of both ends offering simultaneously.
func PeersToOffer(connected []types.ConnectedUser, joinerId string) []string {
	peers := make([]string, 0, len(connected))
	for _, u := range connected {
		if u.UserId == joinerId {
			continue
		}
		peers = append(peers, u.UserId)
	}
	return peers
}

// ValidateSignal checks an inbound negotiation message before relay: it must
// address a concrete other participant.
func ValidateSignal(fromUserId string, p *types.RTCSignalPayload) error {
	if p.TargetUserId == "" || p.TargetUserId == fromUserId {
		return types.ErrInvalid
	}
	return nil
}
