package resolvd

import "errors"

// Sentinel errors returned by the referral engine and transport dispatcher.
// Kept in the teacher's "package: message" style.
var (
	ErrTooManyReferrals   = errors.New("resolvd: too many referrals")
	ErrDepthExceeded      = errors.New("resolvd: alias/referral depth budget exhausted")
	ErrAliasLoop          = errors.New("resolvd: alias loop detected")
	ErrNoNSAuthorities    = errors.New("resolvd: no NS authority records found")
	ErrNoAuthorityAddress = errors.New("resolvd: no A/AAAA records found for the chosen authority")
	ErrOutOfBailiwick     = errors.New("resolvd: out of bailiwick record in response")
	ErrGlueRequired       = errors.New("resolvd: candidate nameserver is in-bailiwick but no glue address was provided")
	ErrCancelled          = errors.New("resolvd: resolve cancelled")

	ErrNoDNSKEY               = errors.New("resolvd: no DNSKEY records found")
	ErrMissingKSK             = errors.New("resolvd: no KSK DNSKEY found for DS records")
	ErrFailedToConvertKSK     = errors.New("resolvd: failed to convert KSK DNSKEY record to DS record")
	ErrMismatchingDS          = errors.New("resolvd: KSK DNSKEY record does not match DS record from parent zone")
	ErrNoSignatures           = errors.New("resolvd: no RRSIG records for zone that should be signed")
	ErrRRSIGRecordsMissing    = errors.New("resolvd: no records found for RRSIG's covered type")
	ErrMissingDNSKEY          = errors.New("resolvd: no matching DNSKEY found for RRSIG records")
	ErrInvalidSignaturePeriod = errors.New("resolvd: incorrect signature validity period")
	ErrNoTrustAnchor          = errors.New("resolvd: no trust anchor covers this name")

	ErrNSECMismatch         = errors.New("resolvd: NSEC record doesn't match question")
	ErrNSECTypeExists       = errors.New("resolvd: NSEC record shows question type exists")
	ErrNSECMultipleCoverage = errors.New("resolvd: multiple NSEC records cover next closer/source of synthesis")
	ErrNSECMissingCoverage  = errors.New("resolvd: NSEC record missing for expected encloser")
	ErrNSECBadDelegation    = errors.New("resolvd: DS or SOA bit set in NSEC type map")
	ErrNSECNSMissing        = errors.New("resolvd: NS bit not set in NSEC type map")

	ErrConfig = errors.New("resolvd: invalid configuration")

	ErrNameError = errors.New("resolvd: name does not exist")
	ErrNoData    = errors.New("resolvd: no data for the requested type")
)

// ErrorKind classifies a ResolverError for callers that need to branch on
// the failure mode (spec.md §7).
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNameError
	KindNoData
	KindTimeout
	KindServerFailure
	KindBogus
	KindIndeterminate
	KindLoopDetected
	KindDepthExceeded
	KindCancelled
	KindConfigError
)

func (k ErrorKind) String() string {
	switch k {
	case KindNameError:
		return "NameError"
	case KindNoData:
		return "NoData"
	case KindTimeout:
		return "Timeout"
	case KindServerFailure:
		return "ServerFailure"
	case KindBogus:
		return "Bogus"
	case KindIndeterminate:
		return "Indeterminate"
	case KindLoopDetected:
		return "LoopDetected"
	case KindDepthExceeded:
		return "DepthExceeded"
	case KindCancelled:
		return "Cancelled"
	case KindConfigError:
		return "ConfigError"
	default:
		return "Unknown"
	}
}

// ResolverError is the error type surfaced by Resolve. It carries the
// classification from spec.md §7 along with the SOA/denial records that
// back a NameError/NoData verdict, when present (Answer is non-nil only for
// KindNameError/KindNoData, set by newNegativeResolverError).
type ResolverError struct {
	Kind    ErrorKind
	Zone    string
	Wrapped error
	Answer  *Answer
}

func (e *ResolverError) Error() string {
	if e.Zone != "" {
		return e.Kind.String() + " (" + e.Zone + "): " + e.Wrapped.Error()
	}
	return e.Kind.String() + ": " + e.Wrapped.Error()
}

func (e *ResolverError) Unwrap() error { return e.Wrapped }

func newResolverError(kind ErrorKind, zone string, cause error) *ResolverError {
	return &ResolverError{Kind: kind, Zone: zone, Wrapped: cause}
}

// newNegativeResolverError builds the ResolverError for a validated
// NXDomain/NoData outcome (spec.md §7, scenario S5: "Result: NameError,
// verdict Secure"). answer carries the Authority/Additional/Rcode/Verdict a
// caller needs to build a reply or inspect the denial proof.
func newNegativeResolverError(kind ErrorKind, zone string, answer *Answer) *ResolverError {
	cause := ErrNameError
	if kind == KindNoData {
		cause = ErrNoData
	}
	return &ResolverError{Kind: kind, Zone: zone, Wrapped: cause, Answer: answer}
}
