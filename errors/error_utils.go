// Package errors provides the coded error type used across the chainstate engine,
// together with helpers that classify errors for peers, operators and metrics.
package errors

import "context"

// IsFatalError reports whether the error leaves the chainstate unusable until
// an operator reindexes. Other store errors leave the durable state intact.
func IsFatalError(err error) bool {
	if err == nil {
		return false
	}

	return Is(err, ErrStoreCorrupt)
}

// IsPenalizable reports whether a peer that relayed the offending object
// should be penalized. Policy and resource rejections depend on local
// configuration and are never penalized.
func IsPenalizable(err error) bool {
	switch KindOf(err) {
	case KindStructural, KindConsensus:
		return true
	default:
		return false
	}
}

// IsContextError determines if an error is related to context cancellation or deadline.
func IsContextError(err error) bool {
	if err == nil {
		return false
	}

	// Check standard context errors
	if err == context.Canceled || err == context.DeadlineExceeded {
		return true
	}

	var tErr *Error
	if As(err, &tErr) {
		if tErr.Code() == ERR_CONTEXT_CANCELED || tErr.Code() == ERR_CONTEXT {
			return true
		}
	}

	// Check if the wrapped error is a context error
	if Is(err, context.Canceled) || Is(err, context.DeadlineExceeded) {
		return true
	}

	return false
}

// GetErrorCategory returns a string representing the category of the error.
// This is useful for logging and metrics labels.
func GetErrorCategory(err error) string {
	if err == nil {
		return "none"
	}

	if IsContextError(err) {
		return "context"
	}

	if kind := KindOf(err); kind != KindUnknown {
		return kind.String()
	}

	var tErr *Error
	if As(err, &tErr) {
		// Group by error code ranges
		code := tErr.Code()
		switch {
		case code >= 10 && code <= 29:
			return "block"
		case code >= 30 && code <= 59:
			return "transaction"
		case code >= 60 && code <= 69:
			return "storage"
		case code >= 70 && code <= 79:
			return "service"
		}
	}

	return "unknown"
}
