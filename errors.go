package redisring

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// RoutingError is returned when a key or node cannot be mapped to a
// dispatch target with the current topology: the snapshot may be stale
// or empty, or a multi-key operation required single-slot routing for
// keys that span slots. It is a normal, recoverable runtime condition;
// callers should refresh the topology and retry.
type RoutingError struct {
	Reason string
	Key    string // key being routed, if any
	Slot   int    // slot of Key, -1 if not applicable
	Addr   string // address being looked up, if any
}

func (e *RoutingError) Error() string {
	msg := "redisring: " + e.Reason
	if e.Key != "" {
		msg += fmt.Sprintf(" (key %q, slot %d)", e.Key, e.Slot)
	} else if e.Addr != "" {
		msg += fmt.Sprintf(" (%s)", e.Addr)
	}
	return msg
}

// NodeError reports the failure of one node's unit of work. The cause
// may be a connectivity failure or a command-level error returned by
// the node; both are reported the same way, with the distinction
// preserved in Cause.
type NodeError struct {
	Node  *ClusterNode
	Cause error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("redisring: node %s: %v", e.Node.Addr(), e.Cause)
}

func (e *NodeError) Unwrap() error {
	return e.Cause
}

// AggregateError wraps every NodeError produced during one multi-node
// dispatch. It is built once, after all dispatched units of work have
// completed, never incrementally. Callers that need the partial
// successes can still inspect the Outcome returned alongside it.
type AggregateError struct {
	Failures []*NodeError
}

func (e *AggregateError) Error() string {
	if len(e.Failures) == 0 {
		return "redisring: no nodes failed"
	}
	var merr *multierror.Error
	for _, f := range e.Failures {
		merr = multierror.Append(merr, f)
	}
	merr.ErrorFormat = func(errs []error) string {
		return fmt.Sprintf("redisring: %d of the dispatched nodes failed: %v", len(errs), errs)
	}
	return merr.Error()
}

// Unwrap exposes the per-node failures to errors.Is/As.
func (e *AggregateError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// PartialRenameError reports a cross-slot rename that failed after it
// had already mutated cluster state. The fallback is inherently
// non-atomic; the flags state which side effects are known to have
// happened so the caller can decide on remediation.
type PartialRenameError struct {
	Source             string
	Destination        string
	DestinationCreated bool // destination key was restored
	SourceDeleted      bool // source key was deleted
	Cause              error
}

func (e *PartialRenameError) Error() string {
	return fmt.Sprintf(
		"redisring: partial cross-slot rename of %q to %q (destination created: %t, source deleted: %t): %v",
		e.Source, e.Destination, e.DestinationCreated, e.SourceDeleted, e.Cause)
}

func (e *PartialRenameError) Unwrap() error {
	return e.Cause
}
