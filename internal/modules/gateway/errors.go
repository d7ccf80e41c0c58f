package gateway

import (
	"errors"
	"fmt"
	"net"
)

// Error taxonomy: transient errors are retried or deferred to the next pass;
// soft rejects (venue-side validation: size, precision, min notional) are
// abandoned without retry or alert.

var ErrOrderNotFound = errors.New("gateway: order not found")

type apiError struct {
	Code string
	Msg  string
	HTTP int
}

func (e *apiError) Error() string {
	return fmt.Sprintf("gateway: api error code=%s msg=%s http=%d", e.Code, e.Msg, e.HTTP)
}

// OKX-style sCode values the engine must not retry: below min size, size
// precision, price precision, insufficient position to reduce.
var softRejectCodes = map[string]struct{}{
	"51000": {}, // parameter error
	"51006": {}, // order price out of range
	"51020": {}, // order size below minimum
	"51121": {}, // size not a multiple of lot size
	"51202": {}, // market order size exceeds limit
	"51503": {}, // order does not exist / already finished
}

var transientCodes = map[string]struct{}{
	"50011": {}, // rate limit
	"50013": {}, // system busy
	"50026": {}, // system error
}

// IsSoftReject reports a venue validation rejection: do not retry, do not alert.
func IsSoftReject(err error) bool {
	var ae *apiError
	if errors.As(err, &ae) {
		_, ok := softRejectCodes[ae.Code]
		return ok
	}
	return false
}

// IsTransient reports an error worth retrying on the next pass.
func IsTransient(err error) bool {
	var ae *apiError
	if errors.As(err, &ae) {
		if _, ok := transientCodes[ae.Code]; ok {
			return true
		}
		return ae.HTTP == 429 || ae.HTTP/100 == 5
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	// unclassified network-ish failures default to retryable
	return !IsSoftReject(err)
}
