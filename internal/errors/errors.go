package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Class is a stable, machine-readable error classification mapped to
// process exit codes. Every class carries default remediation text so
// callers can surface an actionable message without branching on raw
// provider strings.
type Class string

const (
	ClassValidation          Class = "validation_error"
	ClassQuoteExpired        Class = "quote_expired"
	ClassNetworkMismatch     Class = "network_mismatch"
	ClassRouteUnavailable    Class = "route_unavailable"
	ClassUnsupportedToken    Class = "unsupported_token"
	ClassUnsupportedChain    Class = "unsupported_chain"
	ClassAmountTooSmall      Class = "amount_too_small"
	ClassProviderUnavailable Class = "provider_unavailable"
	ClassSigningRejected     Class = "signing_rejected"
	ClassCatalogUnavailable  Class = "catalog_unavailable"
	ClassNetworkLimitation   Class = "network_limitation"
	ClassUnknown             Class = "unknown"
)

var exitCodeByClass = map[Class]int{
	ClassValidation:          2,
	ClassQuoteExpired:        10,
	ClassNetworkMismatch:     11,
	ClassRouteUnavailable:    12,
	ClassUnsupportedToken:    13,
	ClassUnsupportedChain:    14,
	ClassAmountTooSmall:      15,
	ClassProviderUnavailable: 16,
	ClassSigningRejected:     17,
	ClassCatalogUnavailable:  18,
	ClassNetworkLimitation:   19,
	ClassUnknown:             1,
}

var remediationByClass = map[Class]string{
	ClassValidation:          "correct the highlighted fields and retry",
	ClassQuoteExpired:        "request a fresh quote before executing",
	ClassNetworkMismatch:     "switch the wallet to the source network and retry",
	ClassRouteUnavailable:    "no route exists for this pair right now; try a different token or chain",
	ClassUnsupportedToken:    "pick a token supported on the selected chain",
	ClassUnsupportedChain:    "pick a chain supported by the transfer service",
	ClassAmountTooSmall:      "increase the amount above the provider minimum",
	ClassProviderUnavailable: "the transfer service is temporarily unreachable; retry shortly",
	ClassSigningRejected:     "the signature request was declined; confirm in the wallet to continue",
	ClassCatalogUnavailable:  "the chain/token catalog could not be loaded; retry shortly",
	ClassNetworkLimitation:   "this chain does not allow same-chain conversion between these tokens",
	ClassUnknown:             "retry, and report the raw error if it persists",
}

// Error is a typed error carrying a classification, required remediation
// text, and the raw cause when one exists. RouteUnavailable additionally
// records the (token, chain) pair the route was requested for.
type Error struct {
	Class       Class
	Message     string
	Remediation string
	Token       string
	Chain       string
	Cause       error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(class Class, message string) *Error {
	return &Error{Class: class, Message: message, Remediation: remediationByClass[class]}
}

func Wrap(class Class, message string, cause error) *Error {
	return &Error{Class: class, Message: message, Remediation: remediationByClass[class], Cause: cause}
}

// Validation joins every collected violation into a single error so the
// caller sees all problems at once, not just the first.
func Validation(violations []string) *Error {
	return New(ClassValidation, strings.Join(violations, "; "))
}

// RouteUnavailable records which (token, chain) input the aggregator had
// no route for.
func RouteUnavailable(token, chain, message string) *Error {
	err := New(ClassRouteUnavailable, message)
	err.Token = token
	err.Chain = chain
	return err
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// ClassOf returns the classification of err, ClassUnknown for untyped
// errors and the zero Class for nil.
func ClassOf(err error) Class {
	if err == nil {
		return ""
	}
	if typed, ok := As(err); ok {
		return typed.Class
	}
	return ClassUnknown
}

func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if typed, ok := As(err); ok {
		if code, ok := exitCodeByClass[typed.Class]; ok {
			return code
		}
	}
	return exitCodeByClass[ClassUnknown]
}

// Remediation returns the remediation text for err, falling back to the
// Unknown-class text for untyped errors.
func Remediation(err error) string {
	if typed, ok := As(err); ok && typed.Remediation != "" {
		return typed.Remediation
	}
	return remediationByClass[ClassUnknown]
}
