package verification

// Status is the typed outcome of a card verification.
type Status string

const (
	// Verified: the card is authorized.
	Verified Status = "verified"
	// Denied: the authority answered and the card is not authorized.
	Denied Status = "denied"
	// AuthorityFault: the authority answered but the answer is unusable (bad credentials, 5xx, malformed body).
	AuthorityFault Status = "authority_fault"
	// TransportFault: the authority could not be reached in time.
	TransportFault Status = "transport_fault"
)

// Source tells where a result came from.
type Source string

const (
	SourceCache     Source = "cache"
	SourceAuthority Source = "authority"
)

// Result is returned by every CardVerifier. Only Verified grants access;
// every other status fails closed.
type Result struct {
	Status Status `json:"status"`
	Source Source `json:"source"`
	Reason string `json:"reason,omitempty"`
	Err    error  `json:"-"`
}

// Granted reports whether the door may be actuated.
func (r Result) Granted() bool {
	return r.Status == Verified
}

// Fault reports whether the result reflects a failure rather than a decision.
func (r Result) Fault() bool {
	return r.Status == AuthorityFault || r.Status == TransportFault
}

func NewVerified(src Source) Result {
	return Result{Status: Verified, Source: src}
}

func NewDenied(reason string) Result {
	return Result{Status: Denied, Source: SourceAuthority, Reason: reason}
}

func NewAuthorityFault(reason string, err error) Result {
	return Result{Status: AuthorityFault, Source: SourceAuthority, Reason: reason, Err: err}
}

func NewTransportFault(reason string, err error) Result {
	return Result{Status: TransportFault, Source: SourceAuthority, Reason: reason, Err: err}
}
