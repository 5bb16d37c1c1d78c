package dtls

// Role identifies which side of the handshake this connection plays,
// selected by the peer connection orchestrator from the SDP setup
// attribute, spec.md §4.1 ("dtlsRole: active acts as the DTLS client").
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "Server"
	}
	return "Client"
}

// State is the handshake state machine, following the same shape as the
// teacher's PASE/CASE session state enums: one state per flight sent or
// awaited, plus terminal Complete/Failed states.
type State int

const (
	StateInit State = iota
	StateWaitClientHello        // server: waiting for the first ClientHello
	StateWaitHelloVerify        // client: sent ClientHello, waiting for HelloVerifyRequest
	StateWaitServerHello        // client: sent ClientHello w/ cookie, waiting for ServerHello flight
	StateWaitClientHelloCookie  // server: sent HelloVerifyRequest, waiting for ClientHello w/ cookie
	StateWaitCertificateVerify  // server: sent its flight, waiting for the client's key exchange + finished
	StateWaitFinished           // waiting for the peer's Finished to close out the handshake
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateWaitClientHello:
		return "WaitClientHello"
	case StateWaitHelloVerify:
		return "WaitHelloVerify"
	case StateWaitServerHello:
		return "WaitServerHello"
	case StateWaitClientHelloCookie:
		return "WaitClientHelloCookie"
	case StateWaitCertificateVerify:
		return "WaitCertificateVerify"
	case StateWaitFinished:
		return "WaitFinished"
	case StateComplete:
		return "Complete"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}
