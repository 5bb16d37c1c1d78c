package sdp

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	pionsdp "github.com/pion/sdp/v3"
	"github.com/rawrtc/rawrtc/pkg/candidate"
)

// Setup mirrors the DTLS role negotiation of spec.md §4.1's a=setup
// attribute.
type Setup int

const (
	SetupActPass Setup = iota
	SetupActive
	SetupPassive
)

func (s Setup) String() string {
	switch s {
	case SetupActPass:
		return "actpass"
	case SetupActive:
		return "active"
	case SetupPassive:
		return "passive"
	default:
		return "unknown"
	}
}

func parseSetup(value string) (Setup, error) {
	switch value {
	case "actpass":
		return SetupActPass, nil
	case "active":
		return SetupActive, nil
	case "passive":
		return SetupPassive, nil
	default:
		return 0, ErrInvalidSetup
	}
}

// Fingerprint is a single a=fingerprint line: a hash algorithm and the
// certificate digest to verify a DTLS peer against.
type Fingerprint struct {
	Algorithm string
	Hash      string
}

func (f Fingerprint) String() string {
	return f.Algorithm + " " + f.Hash
}

// Params describes the local state a Description is built from: the
// ICE credentials and candidates an Agent has gathered, the DTLS
// fingerprint of a local certificate, and the data-channel media
// parameters spec.md §6 requires.
type Params struct {
	ICEUfrag, ICEPwd string
	ICELite          bool
	Fingerprints     []Fingerprint
	Setup            Setup
	MID              string
	SCTPPort         uint16
	MaxMessageSize   uint32
	Candidates       []*candidate.Candidate
	EndOfCandidates  bool
}

// Description wraps a parsed or constructed session description,
// restricted to the single "application" / UDP/DTLS/SCTP media section
// this transport ever negotiates.
type Description struct {
	raw *pionsdp.SessionDescription
}

// Build constructs a local offer or answer from p. The caller chooses
// Setup: an offerer defaults to SetupActPass, an answerer to
// SetupActive or SetupPassive per spec.md §4.1.
func Build(p Params) (*Description, error) {
	sid, err := randomSessionID()
	if err != nil {
		return nil, err
	}

	sess := &pionsdp.SessionDescription{
		Version: 0,
		Origin: pionsdp.Origin{
			Username:       "-",
			SessionID:      sid,
			SessionVersion: sid,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "0.0.0.0",
		},
		SessionName: "-",
		TimeDescriptions: []pionsdp.TimeDescription{
			{Timing: pionsdp.Timing{StartTime: 0, StopTime: 0}},
		},
	}

	sess.WithValueAttribute("group", "BUNDLE "+p.MID)
	sess.WithPropertyAttribute("extmap-allow-mixed")
	sess.WithValueAttribute("msid-semantic", " WMS")
	for _, fp := range p.Fingerprints {
		sess.WithFingerprint(fp.Algorithm, fp.Hash)
	}
	sess.WithValueAttribute("ice-ufrag", p.ICEUfrag)
	sess.WithValueAttribute("ice-pwd", p.ICEPwd)
	if p.ICELite {
		sess.WithPropertyAttribute(pionsdp.AttrKeyICELite)
	}
	sess.WithValueAttribute(pionsdp.AttrKeyConnectionSetup, p.Setup.String())

	media := &pionsdp.MediaDescription{
		MediaName: pionsdp.MediaName{
			Media:   "application",
			Port:    pionsdp.RangedPort{Value: 9},
			Protos:  []string{"UDP", "DTLS", "SCTP"},
			Formats: []string{"webrtc-datachannel"},
		},
		ConnectionInformation: &pionsdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &pionsdp.Address{Address: "0.0.0.0"},
		},
	}
	media.WithValueAttribute(pionsdp.AttrKeyMID, p.MID)
	media.WithValueAttribute("sctp-port", strconv.Itoa(int(p.SCTPPort)))
	if p.MaxMessageSize > 0 {
		media.WithValueAttribute("max-message-size", strconv.FormatUint(uint64(p.MaxMessageSize), 10))
	}
	for _, c := range p.Candidates {
		media.WithValueAttribute(pionsdp.AttrKeyCandidate, encodeCandidateLine(c))
	}
	if p.EndOfCandidates {
		media.WithPropertyAttribute(pionsdp.AttrKeyEndOfCandidates)
	}
	sess.WithMedia(media)

	return &Description{raw: sess}, nil
}

// Marshal renders the description as CRLF-terminated SDP text.
func (d *Description) Marshal() (string, error) {
	b, err := d.raw.Marshal()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Parse reads a remote offer or answer. It accepts bare LF line endings
// as a fallback per spec.md §6, normalizing to CRLF before handing the
// text to the underlying codec.
func Parse(text string) (*Description, error) {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\n", "\r\n")

	raw := &pionsdp.SessionDescription{}
	if err := raw.Unmarshal([]byte(normalized)); err != nil {
		return nil, err
	}
	return &Description{raw: raw}, nil
}

// Validate checks the invariants spec.md §3 places on the sole media
// section this transport negotiates: exactly one application section
// using the reduced data-channel profile, with a non-empty fingerprint
// list before DTLS can start.
func (d *Description) Validate() error {
	media, err := d.applicationMedia()
	if err != nil {
		return err
	}
	if media.MediaName.Media != "application" || !hasProto(media.MediaName.Protos, "UDP", "DTLS", "SCTP") {
		return ErrUnsupportedMedia
	}
	if len(d.Fingerprints()) == 0 {
		return ErrMissingFingerprint
	}
	if ufrag, pwd := d.ICECredentials(); ufrag == "" || pwd == "" {
		return ErrMissingICECredentials
	}
	return nil
}

// applicationMedia returns the sole media section this profile ever
// negotiates, whatever kind it turned out to carry; Validate is what
// checks the kind matches "application".
func (d *Description) applicationMedia() (*pionsdp.MediaDescription, error) {
	if len(d.raw.MediaDescriptions) == 0 {
		return nil, ErrNoMediaSection
	}
	return d.raw.MediaDescriptions[0], nil
}

func hasProto(protos []string, want ...string) bool {
	if len(protos) != len(want) {
		return false
	}
	for i, p := range protos {
		if !strings.EqualFold(p, want[i]) {
			return false
		}
	}
	return true
}

// ICECredentials returns the ice-ufrag/ice-pwd pair, preferring a
// media-level attribute and falling back to the session level per the
// usual SDP attribute inheritance rule.
func (d *Description) ICECredentials() (ufrag, pwd string) {
	if media, err := d.applicationMedia(); err == nil {
		if v, ok := media.Attribute("ice-ufrag"); ok {
			ufrag = v
		}
		if v, ok := media.Attribute("ice-pwd"); ok {
			pwd = v
		}
	}
	if ufrag == "" {
		ufrag, _ = d.raw.Attribute("ice-ufrag")
	}
	if pwd == "" {
		pwd, _ = d.raw.Attribute("ice-pwd")
	}
	return ufrag, pwd
}

// Fingerprints returns every a=fingerprint line visible to the
// application media section, session-level lines included.
func (d *Description) Fingerprints() []Fingerprint {
	var out []Fingerprint
	collect := func(attrs []pionsdp.Attribute) {
		for _, a := range attrs {
			if a.Key != "fingerprint" {
				continue
			}
			parts := strings.SplitN(a.Value, " ", 2)
			if len(parts) != 2 {
				continue
			}
			out = append(out, Fingerprint{Algorithm: parts[0], Hash: parts[1]})
		}
	}
	collect(d.raw.Attributes)
	if media, err := d.applicationMedia(); err == nil {
		collect(media.Attributes)
	}
	return out
}

// MatchesFingerprint reports whether algorithm and hexDigest equal f's
// algorithm and hash, per spec.md §4.3's mandatory case-insensitive
// comparison.
func (f Fingerprint) MatchesFingerprint(algorithm, hexDigest string) bool {
	return strings.EqualFold(f.Algorithm, algorithm) && strings.EqualFold(f.Hash, hexDigest)
}

// Setup returns the negotiated DTLS role attribute.
func (d *Description) Setup() (Setup, error) {
	if media, err := d.applicationMedia(); err == nil {
		if v, ok := media.Attribute(pionsdp.AttrKeyConnectionSetup); ok {
			return parseSetup(v)
		}
	}
	if v, ok := d.raw.Attribute(pionsdp.AttrKeyConnectionSetup); ok {
		return parseSetup(v)
	}
	return SetupActPass, nil
}

// MID returns the bundle mid of the application media section.
func (d *Description) MID() (string, bool) {
	media, err := d.applicationMedia()
	if err != nil {
		return "", false
	}
	return media.Attribute(pionsdp.AttrKeyMID)
}

// SCTPPort returns the a=sctp-port value of the application section.
func (d *Description) SCTPPort() (uint16, bool) {
	media, err := d.applicationMedia()
	if err != nil {
		return 0, false
	}
	v, ok := media.Attribute("sctp-port")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		return 0, false
	}
	return uint16(n), true
}

// MaxMessageSize returns the a=max-message-size value, if present.
func (d *Description) MaxMessageSize() (uint32, bool) {
	media, err := d.applicationMedia()
	if err != nil {
		return 0, false
	}
	v, ok := media.Attribute("max-message-size")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// ICELite reports whether the remote side advertised a=ice-lite.
func (d *Description) ICELite() bool {
	_, ok := d.raw.Attribute(pionsdp.AttrKeyICELite)
	return ok
}

// EndOfCandidates reports whether the application section carries
// a=end-of-candidates.
func (d *Description) EndOfCandidates() bool {
	media, err := d.applicationMedia()
	if err != nil {
		return false
	}
	_, ok := media.Attribute(pionsdp.AttrKeyEndOfCandidates)
	return ok
}

// Candidates decodes every a=candidate line of the application
// section.
func (d *Description) Candidates() ([]*candidate.Candidate, error) {
	media, err := d.applicationMedia()
	if err != nil {
		return nil, err
	}
	var out []*candidate.Candidate
	for _, a := range media.Attributes {
		if a.Key != pionsdp.AttrKeyCandidate {
			continue
		}
		c, err := parseCandidateLine(a.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// EncodeCandidateLine renders a candidate as the a=candidate value
// spec.md §6 defines, without the "a=candidate:" prefix — the form a
// trickle-ICE notification carries out of band.
func EncodeCandidateLine(c *candidate.Candidate) string {
	return encodeCandidateLine(c)
}

// ParseCandidateLine is the inverse of EncodeCandidateLine, used to
// decode a single trickled candidate delivered outside a full session
// description.
func ParseCandidateLine(value string) (*candidate.Candidate, error) {
	return parseCandidateLine(value)
}

func encodeCandidateLine(c *candidate.Candidate) string {
	line := fmt.Sprintf("%s %d %s %d %s %d typ %s",
		c.Foundation, c.Component, c.Protocol, c.Priority, c.Address, c.Port, c.Type)
	if c.RelatedAddress != "" {
		line += fmt.Sprintf(" raddr %s rport %d", c.RelatedAddress, c.RelatedPort)
	}
	return line
}

func parseCandidateLine(value string) (*candidate.Candidate, error) {
	fields := strings.Fields(value)
	if len(fields) < 8 || fields[6] != "typ" {
		return nil, ErrInvalidCandidate
	}
	component, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, ErrInvalidCandidate
	}
	priority, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return nil, ErrInvalidCandidate
	}
	port, err := strconv.Atoi(fields[5])
	if err != nil {
		return nil, ErrInvalidCandidate
	}
	typ, err := parseCandidateType(fields[7])
	if err != nil {
		return nil, ErrInvalidCandidate
	}

	c := &candidate.Candidate{
		Foundation: fields[0],
		Component:  component,
		Priority:   uint32(priority),
		Address:    fields[4],
		Port:       port,
		Type:       typ,
	}

	for i := 8; i+1 < len(fields); i += 2 {
		switch fields[i] {
		case "raddr":
			c.RelatedAddress = fields[i+1]
		case "rport":
			if p, err := strconv.Atoi(fields[i+1]); err == nil {
				c.RelatedPort = p
			}
		}
	}
	return c, nil
}

func parseCandidateType(token string) (candidate.Type, error) {
	switch token {
	case "host":
		return candidate.TypeHost, nil
	case "srflx":
		return candidate.TypeServerReflexive, nil
	case "prflx":
		return candidate.TypePeerReflexive, nil
	case "relay":
		return candidate.TypeRelay, nil
	default:
		return 0, ErrInvalidCandidate
	}
}

func randomSessionID() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	// Clear the top bit so the value fits a signed 64-bit NTP-style
	// session id field the way JSEP session descriptions expect.
	return binary.BigEndian.Uint64(b[:]) &^ (1 << 63), nil
}
