// Package mysterr defines the typed error taxonomy shared by every stage of
// the myst pipeline, replacing the distilled protocol's string-keyed
// exceptions with a typed Kind plus structured fields.
package mysterr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a pipeline failure.
type Kind int

const (
	// KindUnknown is the zero value and should never be constructed directly.
	KindUnknown Kind = iota
	// KindInsufficientNodes means the directory returned fewer candidates
	// than shards*redundancy demanded.
	KindInsufficientNodes
	// KindDistributionFailed means every node attempt for one shard failed
	// during upload.
	KindDistributionFailed
	// KindInsufficientShards means download cannot reconstruct a shard set:
	// fewer than D valid shards survived.
	KindInsufficientShards
	// KindAuthenticationFailed means an AEAD tag mismatch occurred outside
	// the password path (fragment layer, or master layer with a random key).
	KindAuthenticationFailed
	// KindIncorrectPassword means the AEAD tag mismatch occurred on the
	// master layer while the manifest is password-bound.
	KindIncorrectPassword
	// KindIntegrityFailure means a SHA-256 checksum did not match its
	// recorded digest at some named stage.
	KindIntegrityFailure
	// KindUnsupportedManifest means the manifest version/schema is not
	// understood by this implementation.
	KindUnsupportedManifest
	// KindNodeUnreachable is a soft, per-replica network failure.
	KindNodeUnreachable
	// KindFragmentNotFound is a soft, per-replica miss (404).
	KindFragmentNotFound
	// KindPasswordRequired means the manifest is password-bound but no
	// password was supplied.
	KindPasswordRequired
)

func (k Kind) String() string {
	switch k {
	case KindInsufficientNodes:
		return "InsufficientNodes"
	case KindDistributionFailed:
		return "DistributionFailed"
	case KindInsufficientShards:
		return "InsufficientShards"
	case KindAuthenticationFailed:
		return "AuthenticationFailed"
	case KindIncorrectPassword:
		return "IncorrectPassword"
	case KindIntegrityFailure:
		return "IntegrityFailure"
	case KindUnsupportedManifest:
		return "UnsupportedManifest"
	case KindNodeUnreachable:
		return "NodeUnreachable"
	case KindFragmentNotFound:
		return "FragmentNotFound"
	case KindPasswordRequired:
		return "PasswordRequired"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type carried through the pipeline. Fields not
// relevant to a given Kind are left zero.
type Error struct {
	Kind  Kind
	Have  int    // InsufficientShards, InsufficientNodes
	Need  int    // InsufficientShards, InsufficientNodes
	Shard int    // DistributionFailed
	Stage string // IntegrityFailure
	Msg   string
	Err   error // wrapped cause, if any
}

func (e *Error) Error() string {
	base := e.Kind.String()
	switch e.Kind {
	case KindInsufficientShards, KindInsufficientNodes:
		base = fmt.Sprintf("%s(have=%d, need=%d)", base, e.Have, e.Need)
	case KindDistributionFailed:
		base = fmt.Sprintf("%s(shard=%d)", base, e.Shard)
	case KindIntegrityFailure:
		base = fmt.Sprintf("%s(%s)", base, e.Stage)
	}
	if e.Msg != "" {
		base = base + ": " + e.Msg
	}
	if e.Err != nil {
		base = base + ": " + e.Err.Error()
	}
	return base
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is match any *Error target of the same Kind, ignoring the
// other fields — see KindOf for the idiomatic check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf extracts the Kind from err, or KindUnknown if err is not (or does
// not wrap) a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsSoft reports whether a Kind is absorbed per-replica (soft) rather than
// aborting the whole pipeline (hard), per spec.md §7's propagation policy.
func (k Kind) IsSoft() bool {
	return k == KindNodeUnreachable || k == KindFragmentNotFound
}

func InsufficientNodes(have, need int) error {
	return &Error{Kind: KindInsufficientNodes, Have: have, Need: need}
}

func DistributionFailed(shard int, cause error) error {
	return &Error{Kind: KindDistributionFailed, Shard: shard, Err: cause}
}

func InsufficientShards(have, need int) error {
	return &Error{Kind: KindInsufficientShards, Have: have, Need: need}
}

func AuthenticationFailed(cause error) error {
	return &Error{Kind: KindAuthenticationFailed, Err: cause}
}

func IncorrectPassword(cause error) error {
	return &Error{Kind: KindIncorrectPassword, Err: cause}
}

func IntegrityFailure(stage string) error {
	return &Error{Kind: KindIntegrityFailure, Stage: stage}
}

func UnsupportedManifest(msg string) error {
	return &Error{Kind: KindUnsupportedManifest, Msg: msg}
}

func NodeUnreachable(cause error) error {
	return &Error{Kind: KindNodeUnreachable, Err: cause}
}

func FragmentNotFound(msg string) error {
	return &Error{Kind: KindFragmentNotFound, Msg: msg}
}

func PasswordRequired() error {
	return &Error{Kind: KindPasswordRequired}
}
