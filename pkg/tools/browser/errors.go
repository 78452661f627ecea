package browser

import (
	"context"
	"errors"
	"strings"

	"github.com/tracewright/tracewright/pkg/trace"
)

// opCategory distinguishes how a driver error should be read: a timeout
// waiting for a locator means the element never appeared, while the same
// timeout during navigation means the page never loaded.
type opCategory int

const (
	opNavigation opCategory = iota
	opElement
	opPage
)

var sessionClosedMarkers = []string{
	"target closed",
	"browser has been closed",
	"context or browser has been closed",
	"page has been closed",
	"connection closed",
}

// classify maps a driver error to exactly one failure reason. Classification
// keys off error identity and well-known Playwright message markers; the
// loop must never parse error text itself.
func classify(err error, cat opCategory) trace.FailureReason {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return trace.ReasonTimeout
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range sessionClosedMarkers {
		if strings.Contains(msg, marker) {
			return trace.ReasonSessionClosed
		}
	}

	switch cat {
	case opNavigation:
		return trace.ReasonNavigationFailed
	case opElement:
		// Locator timeouts mean the element never became actionable.
		return trace.ReasonElementNotFound
	default:
		return trace.ReasonTimeout
	}
}
