// Package content obtains the materialized content of a bundle from the
// subsystem that produced it.
package content

// Kind tags a Result.
type Kind string

const (
	KindSuccess Kind = "success"
	KindFailure Kind = "failure"
)

// Reason explains a failed content request.
type Reason string

const (
	ReasonNotFound      Reason = "not_found"
	ReasonUpstreamError Reason = "upstream_error"
	ReasonTimeout       Reason = "timeout"
	ReasonProtocolError Reason = "protocol_error"
)

// Result is the outcome of a content request. Location is set for
// KindSuccess, Reason and Description for KindFailure.
type Result struct {
	Kind        Kind
	Location    string
	Reason      Reason
	Description string
}

// Success builds a successful result.
func Success(location string) Result {
	return Result{Kind: KindSuccess, Location: location}
}

// Failure builds a failed result.
func Failure(reason Reason, description string) Result {
	return Result{Kind: KindFailure, Reason: reason, Description: description}
}

// OK reports whether content is available.
func (r Result) OK() bool { return r.Kind == KindSuccess }

// Outcome is the label used in logs and metrics.
func (r Result) Outcome() string {
	if r.OK() {
		return string(KindSuccess)
	}
	return string(r.Reason)
}
