package vectorstore

import "errors"

// ErrStorageUnavailable means the backing database could not be opened or
// created. There is no recovery path; the caller decides how to surface it.
var ErrStorageUnavailable = errors.New("vector storage unavailable")

// ErrStorageCorrupt means the persisted schema was incompatible and the
// one-shot reset-and-retry also failed. Reaching this error implies the
// store already dropped all collections trying to recover.
var ErrStorageCorrupt = errors.New("vector storage corrupt")
