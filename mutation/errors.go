package mutation

import "errors"

var (
	// ErrMutationFailed wraps every error returned by a mutation func.
	ErrMutationFailed = errors.New("mutation: mutation failed")

	// ErrNilMutationFunc indicates Run was called without a mutation func.
	ErrNilMutationFunc = errors.New("mutation: mutation func is nil")

	// ErrNilCoordinator indicates an Executor was created without a coordinator.
	ErrNilCoordinator = errors.New("mutation: coordinator is nil")
)
