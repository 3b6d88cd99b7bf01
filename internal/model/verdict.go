package model

// Stance is the oracle's classification of an article's relationship to the
// claim under check.
type Stance string

const (
	StanceSupports     Stance = "supports"
	StanceRefutes      Stance = "refutes"
	StanceUnrelated    Stance = "unrelated"
	StanceInconclusive Stance = "inconclusive"
)

// VerifierStatus describes the outcome of one verification attempt.
type VerifierStatus string

const (
	// VerifierOK means the oracle answered and the reply was normalized.
	VerifierOK VerifierStatus = "ok"
	// VerifierOracleError means the call failed for a plausibly retryable
	// reason (timeout, rate limit, transient network failure).
	VerifierOracleError VerifierStatus = "oracle_error"
	// VerifierUnavailable means the oracle could not be used at all for this
	// article (no credential, auth rejection, malformed request, open circuit).
	VerifierUnavailable VerifierStatus = "oracle_unavailable"
	// VerifierSkipped means verification was not attempted: either not
	// requested by the caller or the article fetch did not succeed.
	VerifierSkipped VerifierStatus = "skipped"
)

// Verdict is the normalized result of one claim-vs-article verification.
// Stance and Confidence are meaningful only when Status == VerifierOK.
type Verdict struct {
	Stance     Stance         `json:"stance"`
	Confidence float64        `json:"confidence"`
	Rationale  string         `json:"rationale,omitempty"`
	Status     VerifierStatus `json:"verifier_status"`
}

// SkippedVerdict marks an article whose verification was never attempted.
func SkippedVerdict() Verdict {
	return Verdict{Stance: StanceInconclusive, Status: VerifierSkipped}
}

// UnavailableVerdict marks an article the oracle could not process.
func UnavailableVerdict(note string) Verdict {
	return Verdict{Stance: StanceInconclusive, Rationale: note, Status: VerifierUnavailable}
}

// ErrorVerdict marks a verification call that failed transiently.
func ErrorVerdict(note string) Verdict {
	return Verdict{Stance: StanceInconclusive, Rationale: note, Status: VerifierOracleError}
}
