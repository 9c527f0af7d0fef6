package gateway

import "errors"

// Error taxonomy for gateway calls. Callers branch with errors.Is: permission
// failures surface to the user, not-found deletes reconcile locally, and
// everything else is a network failure retried only by explicit user action.
var (
	ErrNetwork          = errors.New("gateway: network failure")
	ErrPermissionDenied = errors.New("gateway: permission denied")
	ErrNotFound         = errors.New("gateway: not found")
)
