package datasource

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/ekaya-inc/edda-engine/pkg/apperrors"
)

// DriverClassifier maps a driver-specific error to a Kind.
// It returns false when the error is not one it recognizes.
type DriverClassifier func(err error) (apperrors.Kind, bool)

// ClassifyError wraps err as a *apperrors.ScanError. The driver classifier is
// consulted first, then transport-level checks shared by all engines.
// Errors that are already classified are returned unchanged.
func ClassifyError(stage apperrors.Stage, table string, err error, driver DriverClassifier) error {
	if err == nil {
		return nil
	}
	var se *apperrors.ScanError
	if errors.As(err, &se) {
		return err
	}

	if driver != nil {
		if kind, ok := driver(err); ok {
			return apperrors.NewScanError(kind, stage, table, err)
		}
	}
	if kind, ok := classifyTransport(err); ok {
		return apperrors.NewScanError(kind, stage, table, err)
	}
	return apperrors.NewScanError(apperrors.KindInternal, stage, table, err)
}

// classifyTransport recognizes network and deadline failures.
func classifyTransport(err error) (apperrors.Kind, bool) {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.KindTimeout, true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return apperrors.KindConnectionUnreachable, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return apperrors.KindTimeout, true
		}
		return apperrors.KindConnectionUnreachable, true
	}

	// Some drivers flatten the dial error into text.
	msg := strings.ToLower(err.Error())
	for _, pattern := range unreachablePatterns {
		if strings.Contains(msg, pattern) {
			return apperrors.KindConnectionUnreachable, true
		}
	}
	if strings.Contains(msg, "i/o timeout") || strings.Contains(msg, "timed out") {
		return apperrors.KindTimeout, true
	}
	return "", false
}

var unreachablePatterns = []string{
	"connection refused",
	"no such host",
	"network is unreachable",
	"no route to host",
	"dial tcp",
	"failed to connect",
	"unable to open tcp connection",
}

// PartialKind converts a table-level failure kind into its recoverable form.
// A timeout while sampling one table does not abort the run.
func PartialKind(kind apperrors.Kind) apperrors.Kind {
	if kind == apperrors.KindTimeout {
		return apperrors.KindTimeoutPartial
	}
	return kind
}
