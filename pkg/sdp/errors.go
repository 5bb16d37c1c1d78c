// Package sdp translates between the ICE/DTLS/SCTP session state of
// spec.md §3 and the textual session description spec.md §6 says
// applications exchange out-of-band. It is a thin layer over
// github.com/pion/sdp/v3: this package restricts itself to the exact
// line and attribute set spec.md §6 enumerates and never round-trips
// media kinds other than "application".
package sdp

import "errors"

var (
	// ErrNoMediaSection is returned when a description carries no media
	// section at all; a sole section of another kind yields
	// ErrUnsupportedMedia instead.
	ErrNoMediaSection = errors.New("sdp: no application media section")
	// ErrUnsupportedMedia is returned when the sole media section is not
	// the webrtc-datachannel profile this package understands.
	ErrUnsupportedMedia = errors.New("sdp: unsupported media section")
	// ErrMissingFingerprint is returned when a description has no
	// a=fingerprint line to verify a DTLS peer certificate against.
	ErrMissingFingerprint = errors.New("sdp: missing fingerprint")
	// ErrMissingICECredentials is returned when a media section has
	// neither its own nor inherited ice-ufrag/ice-pwd attributes.
	ErrMissingICECredentials = errors.New("sdp: missing ice credentials")
	// ErrInvalidCandidate is returned when an a=candidate line cannot be
	// parsed into a candidate.Candidate.
	ErrInvalidCandidate = errors.New("sdp: invalid candidate line")
	// ErrInvalidSetup is returned when an a=setup value is not one of
	// actpass, active, or passive.
	ErrInvalidSetup = errors.New("sdp: invalid setup value")
)
