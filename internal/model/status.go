package model

import (
	"encoding/json"
	"fmt"
)

// StatusKind is the life-cycle label the server reports for a download task.
// The wire values match the server's enum names.
type StatusKind string

const (
	// StatusQueued means the task is waiting for a worker
	StatusQueued StatusKind = "QUEUED"

	// StatusFetching means the server is resolving the source URL
	StatusFetching StatusKind = "FETCHING"

	// StatusDownloading means the audio download is in progress
	StatusDownloading StatusKind = "DOWNLOADING"

	// StatusConverting means the audio is being converted
	StatusConverting StatusKind = "CONVERTING"

	// StatusNormalizing means loudness normalization is running
	StatusNormalizing StatusKind = "NORMALIZING"

	// StatusEnhancing means the enhancement step is running
	StatusEnhancing StatusKind = "ENHANCING"

	// StatusFinished means the task completed successfully
	StatusFinished StatusKind = "FINISHED"

	// StatusError means the task failed on the server
	StatusError StatusKind = "ERROR"

	// StatusCancelled means the task was cancelled
	StatusCancelled StatusKind = "CANCELLED"
)

// StatusType classifies a StatusKind by how its progress is reported.
type StatusType int

const (
	// TypeIndefinite is a long-running state with no meaningful percentage
	TypeIndefinite StatusType = iota

	// TypePercentage is a state with bounded 0.0-1.0 progress
	TypePercentage

	// TypeTerminal is an end state; the task never transitions further
	TypeTerminal
)

// String returns the string representation of StatusKind
func (k StatusKind) String() string {
	return string(k)
}

// Type returns the progress classification of the kind
func (k StatusKind) Type() StatusType {
	switch k {
	case StatusQueued, StatusFetching, StatusEnhancing:
		return TypeIndefinite
	case StatusDownloading, StatusConverting, StatusNormalizing:
		return TypePercentage
	default:
		return TypeTerminal
	}
}

// Valid reports whether the kind is one of the known enum values
func (k StatusKind) Valid() bool {
	switch k {
	case StatusQueued, StatusFetching, StatusDownloading, StatusConverting,
		StatusNormalizing, StatusEnhancing, StatusFinished, StatusError,
		StatusCancelled:
		return true
	}
	return false
}

// IsTerminal returns true if the kind is an end state (finished, error or cancelled)
func (k StatusKind) IsTerminal() bool {
	return k.Type() == TypeTerminal
}

// HasPercentage returns true if Percentage carries meaning for this kind
func (k StatusKind) HasPercentage() bool {
	return k.Type() == TypePercentage
}

// UnmarshalJSON decodes the kind and rejects values outside the enum, so a
// frame with an unknown status label surfaces as a decode failure instead of
// silently producing an empty kind.
func (k *StatusKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	kind := StatusKind(s)
	if !kind.Valid() {
		return fmt.Errorf("unknown status kind %q", s)
	}
	*k = kind
	return nil
}
