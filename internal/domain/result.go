package domain

import "fmt"

// ResultCode is returned by every presence client call.
type ResultCode int

const (
	ResultOK ResultCode = iota
	ResultServiceUnavailable
	ResultInternalError
	ResultInvalidCredential
	ResultNotRunning
	ResultApplicationMismatch
	ResultTransportError
	ResultRateLimited
)

func (r ResultCode) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultServiceUnavailable:
		return "service_unavailable"
	case ResultInternalError:
		return "internal_error"
	case ResultInvalidCredential:
		return "invalid_credential"
	case ResultNotRunning:
		return "not_running"
	case ResultApplicationMismatch:
		return "application_mismatch"
	case ResultTransportError:
		return "transport_error"
	case ResultRateLimited:
		return "rate_limited"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// FailureClass groups result codes by how the engine reacts to them.
type FailureClass int

const (
	FailureNone FailureClass = iota
	// FailureCredentialFormat is permanent until restart or one accepted update.
	FailureCredentialFormat
	// FailureServiceUnreachable is retried after the reconnect cooldown.
	FailureServiceUnreachable
	// FailureFeatureDisabled is a configuration-driven no-op, not an error.
	FailureFeatureDisabled
	// FailureInternalTransport is retried like FailureServiceUnreachable.
	FailureInternalTransport
	// FailureCallback is logged only.
	FailureCallback
)

// Classify maps a client result code to its failure class.
func Classify(code ResultCode) FailureClass {
	switch code {
	case ResultOK:
		return FailureNone
	case ResultInvalidCredential:
		return FailureCredentialFormat
	case ResultNotRunning, ResultServiceUnavailable:
		return FailureServiceUnreachable
	case ResultApplicationMismatch:
		return FailureFeatureDisabled
	case ResultRateLimited:
		return FailureCallback
	default:
		return FailureInternalTransport
	}
}

// Transient reports whether the failure clears by retrying later.
func (c FailureClass) Transient() bool {
	return c == FailureServiceUnreachable || c == FailureInternalTransport
}
