package provision

import "fmt"

// CallResult folds one identity API call into success, an application-level
// rejection (the backend answered with an unexpected status), or a
// transport-level failure. The orchestrator only branches on OK(), but the
// two failure classes stay distinguishable for logs and the audit trail.
type CallResult struct {
	ok     bool
	status int
	err    error
}

// Succeeded marks a call whose response matched the expected status.
func Succeeded(status int) CallResult {
	return CallResult{ok: true, status: status}
}

// Rejected marks a call the backend answered with a non-success status.
func Rejected(status int) CallResult {
	return CallResult{status: status}
}

// TransportFailure marks a call that never produced a backend response.
func TransportFailure(err error) CallResult {
	return CallResult{err: err}
}

func (r CallResult) OK() bool { return r.ok }

// TransportFailed reports whether the failure happened below the
// application layer.
func (r CallResult) TransportFailed() bool { return !r.ok && r.err != nil }

// Status returns the backend status code, 0 for transport failures.
func (r CallResult) Status() int { return r.status }

func (r CallResult) Err() error { return r.err }

func (r CallResult) String() string {
	switch {
	case r.ok:
		return fmt.Sprintf("ok (%d)", r.status)
	case r.err != nil:
		return fmt.Sprintf("transport failure: %v", r.err)
	default:
		return fmt.Sprintf("rejected (%d)", r.status)
	}
}
