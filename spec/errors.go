package spec

import "errors"

// ErrorKind is the stable taxonomy of error classes a core operation can
// return. Callers match kinds with errors.Is against the sentinels below,
// never by inspecting error strings.
type ErrorKind int

const (
	// KindInternal covers programmer-visible bugs; logged with full
	// context, surfaced to the caller as a generic failure.
	KindInternal ErrorKind = iota
	// KindInputValidation covers a malformed query, negative k, or an
	// unsupported filter.
	KindInputValidation
	// KindNotFound means the index holds no entries yet (bootstrap state);
	// at the query surface this means "empty result", not an error.
	KindNotFound
	// KindEmbeddingUnavailable means the embedding service timed out or
	// failed; always propagated to the caller, never swallowed into a
	// zero vector.
	KindEmbeddingUnavailable
	// KindIndexConflict means a vector-dimension mismatch or schema
	// drift; fatal to the operation.
	KindIndexConflict
	// KindSyncAborted means the scanner or the embedder failed mid-sync;
	// the prior manifest is preserved.
	KindSyncAborted
	// KindSandboxUnavailable means the isolation primitive is missing;
	// the Immune Controller treats the candidate as rejected.
	KindSandboxUnavailable
	// KindPolicyViolation means the Static Validator rejected the
	// candidate.
	KindPolicyViolation
)

func (k ErrorKind) String() string {
	switch k {
	case KindInputValidation:
		return "input_validation"
	case KindNotFound:
		return "not_found"
	case KindEmbeddingUnavailable:
		return "embedding_unavailable"
	case KindIndexConflict:
		return "index_conflict"
	case KindSyncAborted:
		return "sync_aborted"
	case KindSandboxUnavailable:
		return "sandbox_unavailable"
	case KindPolicyViolation:
		return "policy_violation"
	default:
		return "internal"
	}
}

// Package-level sentinel errors, one per ErrorKind. Wrap with
// fmt.Errorf("%w: ...", sentinel) to attach context while keeping
// errors.Is(err, sentinel) true.
var (
	ErrInputValidation     = errors.New("input validation")
	ErrNotFound            = errors.New("not found")
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	ErrIndexConflict       = errors.New("index conflict")
	ErrSyncAborted         = errors.New("sync aborted")
	ErrSandboxUnavailable  = errors.New("sandbox unavailable")
	ErrPolicyViolation     = errors.New("policy violation")
	ErrInternal            = errors.New("internal error")
)

// sentinelByKind backs Kind.Sentinel and keeps the kind<->sentinel mapping
// in one place.
var sentinelByKind = map[ErrorKind]error{
	KindInputValidation:      ErrInputValidation,
	KindNotFound:             ErrNotFound,
	KindEmbeddingUnavailable: ErrEmbeddingUnavailable,
	KindIndexConflict:        ErrIndexConflict,
	KindSyncAborted:          ErrSyncAborted,
	KindSandboxUnavailable:   ErrSandboxUnavailable,
	KindPolicyViolation:      ErrPolicyViolation,
	KindInternal:             ErrInternal,
}

// Sentinel returns the package-level sentinel error for k.
func (k ErrorKind) Sentinel() error {
	if err, ok := sentinelByKind[k]; ok {
		return err
	}
	return ErrInternal
}

// CoreError wraps an operation failure with a stable Kind alongside the
// underlying cause, so callers can both errors.Is against the taxonomy and
// read a human-readable message.
type CoreError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *CoreError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.Sentinel().Error()
	}
	return e.Op + ": " + e.Kind.Sentinel().Error() + ": " + e.Err.Error()
}

func (e *CoreError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind.Sentinel()
}

// Is lets errors.Is(err, KindX.Sentinel()) succeed without unwrapping twice,
// and lets errors.Is(err, someOtherCoreError) compare by Kind.
func (e *CoreError) Is(target error) bool {
	if target == e.Kind.Sentinel() {
		return true
	}
	var ce *CoreError
	if errors.As(target, &ce) {
		return ce.Kind == e.Kind
	}
	return false
}

// NewError builds a CoreError, wrapping cause (may be nil).
func NewError(kind ErrorKind, op string, cause error) error {
	return &CoreError{Kind: kind, Op: op, Err: cause}
}

// KindOf extracts the ErrorKind carried by err, defaulting to KindInternal
// if err does not wrap a CoreError.
func KindOf(err error) ErrorKind {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}
