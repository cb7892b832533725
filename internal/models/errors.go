package models

import "errors"

var (
	// ErrUnauthorized means the request carries no user identity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrStoreUnavailable means the history backend could not be reached.
	ErrStoreUnavailable = errors.New("history store unavailable")

	// ErrLoadFailed means a knowledge source could not be fetched or parsed.
	ErrLoadFailed = errors.New("source load failed")

	// ErrEmbedFailed means the embedding provider returned an error.
	ErrEmbedFailed = errors.New("embedding failed")

	// ErrIndexUnavailable means the vector store returned an error.
	ErrIndexUnavailable = errors.New("knowledge index unavailable")

	// ErrGenerationFailed means the completion generator returned an error or no text.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrNotFound is returned by lookups that have nothing to return.
	// A query against a companion with no knowledge is not an error and never returns it.
	ErrNotFound = errors.New("not found")

	// ErrCompanionNotFound means no profile exists for the companion id.
	ErrCompanionNotFound = errors.New("companion not found")

	// ErrInvalidKey means a CompanionKey has an empty field.
	ErrInvalidKey = errors.New("invalid companion key")

	// ErrInvalidSource means a source has an unknown type or no payload.
	ErrInvalidSource = errors.New("invalid source")

	// ErrInvalidFilter means a knowledge filter has no companion id.
	ErrInvalidFilter = errors.New("invalid knowledge filter")
)
