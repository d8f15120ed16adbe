package registry

import "errors"

// Sentinel storage-kind errors, classified via errors.Is by callers.
var (
	ErrNotFound      = errors.New("registry: record not found")
	ErrChecksumTaken = errors.New("registry: checksum already in use")
)
