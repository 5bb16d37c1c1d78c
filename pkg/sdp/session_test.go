package sdp

import (
	"strings"
	"testing"

	"github.com/rawrtc/rawrtc/pkg/candidate"
)

func testParams() Params {
	return Params{
		ICEUfrag: "4ZcD",
		ICEPwd:   "aSecretPasswordValueLongEnough",
		Fingerprints: []Fingerprint{
			{Algorithm: "sha-256", Hash: "AA:BB:CC:DD"},
		},
		Setup:          SetupActPass,
		MID:            "0",
		SCTPPort:       5000,
		MaxMessageSize: 262144,
		Candidates: []*candidate.Candidate{
			{
				Foundation: "f1",
				Component:  1,
				Protocol:   candidate.ProtoUDP,
				Priority:   candidate.Priority(candidate.TypeHost, 65535, 1),
				Address:    "10.0.0.5",
				Port:       54321,
				Type:       candidate.TypeHost,
			},
		},
		EndOfCandidates: true,
	}
}

func TestBuildThenParseRoundTrip(t *testing.T) {
	d, err := Build(testParams())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	text, err := d.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	parsed, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	ufrag, pwd := parsed.ICECredentials()
	if ufrag != "4ZcD" || pwd != "aSecretPasswordValueLongEnough" {
		t.Fatalf("unexpected ICE credentials: %q %q", ufrag, pwd)
	}

	fps := parsed.Fingerprints()
	if len(fps) != 1 || !fps[0].MatchesFingerprint("sha-256", "AA:BB:CC:DD") {
		t.Fatalf("unexpected fingerprints: %+v", fps)
	}

	setup, err := parsed.Setup()
	if err != nil || setup != SetupActPass {
		t.Fatalf("unexpected setup: %v err=%v", setup, err)
	}

	mid, ok := parsed.MID()
	if !ok || mid != "0" {
		t.Fatalf("unexpected mid: %q ok=%v", mid, ok)
	}

	port, ok := parsed.SCTPPort()
	if !ok || port != 5000 {
		t.Fatalf("unexpected sctp-port: %d ok=%v", port, ok)
	}

	size, ok := parsed.MaxMessageSize()
	if !ok || size != 262144 {
		t.Fatalf("unexpected max-message-size: %d ok=%v", size, ok)
	}

	if !parsed.EndOfCandidates() {
		t.Fatal("expected end-of-candidates")
	}

	cands, err := parsed.Candidates()
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(cands) != 1 || cands[0].Address != "10.0.0.5" || cands[0].Port != 54321 {
		t.Fatalf("unexpected candidates: %+v", cands)
	}
}

func TestParseThenMarshalIsByteIdentical(t *testing.T) {
	d, err := Build(testParams())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	first, err := d.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	parsed, err := Parse(first)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	second, err := parsed.Marshal()
	if err != nil {
		t.Fatalf("re-Marshal: %v", err)
	}

	if first != second {
		t.Fatalf("parse-then-serialize mismatch:\n--- first ---\n%s\n--- second ---\n%s", first, second)
	}
}

func TestParseAcceptsBareLFLineEndings(t *testing.T) {
	d, _ := Build(testParams())
	text, _ := d.Marshal()
	lfOnly := strings.ReplaceAll(text, "\r\n", "\n")

	if _, err := Parse(lfOnly); err != nil {
		t.Fatalf("Parse with LF-only input: %v", err)
	}
}

func TestValidateRejectsMissingFingerprint(t *testing.T) {
	p := testParams()
	p.Fingerprints = nil
	d, _ := Build(p)
	text, _ := d.Marshal()
	parsed, _ := Parse(text)

	if err := parsed.Validate(); err != ErrMissingFingerprint {
		t.Fatalf("expected ErrMissingFingerprint, got %v", err)
	}
}

func TestValidateRejectsNonApplicationMedia(t *testing.T) {
	text := "v=0\r\n" +
		"o=- 1 1 IN IP4 0.0.0.0\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"a=fingerprint:sha-256 AA:BB\r\n" +
		"a=ice-ufrag:x\r\n" +
		"a=ice-pwd:y\r\n" +
		"m=audio 9 RTP/AVP 0\r\n" +
		"a=mid:0\r\n"

	parsed, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := parsed.Validate(); err != ErrUnsupportedMedia {
		t.Fatalf("expected ErrUnsupportedMedia, got %v", err)
	}
}

func TestCandidateLineRoundTrip(t *testing.T) {
	c := &candidate.Candidate{
		Foundation:     "f2",
		Component:      1,
		Protocol:       candidate.ProtoUDP,
		Priority:       12345,
		Address:        "203.0.113.4",
		Port:           9000,
		Type:           candidate.TypeServerReflexive,
		RelatedAddress: "10.0.0.5",
		RelatedPort:    54321,
	}
	line := encodeCandidateLine(c)
	decoded, err := parseCandidateLine(line)
	if err != nil {
		t.Fatalf("parseCandidateLine: %v", err)
	}
	if decoded.Foundation != c.Foundation || decoded.Address != c.Address ||
		decoded.Type != c.Type || decoded.RelatedAddress != c.RelatedAddress ||
		decoded.RelatedPort != c.RelatedPort {
		t.Fatalf("round trip mismatch: got %+v want %+v", decoded, c)
	}
}
