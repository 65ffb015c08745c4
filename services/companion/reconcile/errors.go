// Copyright (C) 2026 Memora Care (dev@memoracare.it)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reconcile

import "errors"

// Sentinel errors for reconciliation operations.
var (
	// ErrUnknownHandle is returned when an optimistic handle does not match
	// any pending entry. The entry may have been discarded after a bounded
	// wait, or the handle was already reconciled.
	ErrUnknownHandle = errors.New("unknown optimistic handle")

	// ErrReconcileConflict is returned when an optimistic entry cannot be
	// matched to a confirmed event. The optimistic entry is discarded; it
	// is never left displayed indefinitely.
	ErrReconcileConflict = errors.New("optimistic entry conflicts with confirmed state")

	// ErrPublishFailed is returned when a remote insert failed after the
	// single automatic retry. The optimistic entry has been rolled back and
	// the operation is safe to retry from scratch.
	ErrPublishFailed = errors.New("publish failed after retry")
)
