package models

import "errors"

// Domain errors returned by the store and services. Handlers classify these
// into the closed error-code set in codes.go.
var (
	// Workspace errors
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrQuotaExceeded     = errors.New("workspace storage quota exceeded")

	// File errors
	ErrFileNotFound      = errors.New("file not found")
	ErrFileDeleted       = errors.New("file is deleted")
	ErrFileExists        = errors.New("file already exists")
	ErrPayloadTooLarge   = errors.New("content exceeds maximum file size")
	ErrETagMismatch      = errors.New("etag precondition failed")
	ErrRecoveryExpired   = errors.New("recovery window has expired")
	ErrSourceNotFound    = errors.New("source file not found")
	ErrDestinationExists = errors.New("destination path is occupied")

	// Folder errors
	ErrFolderNotFound = errors.New("folder not found")
	ErrFolderExists   = errors.New("folder already exists")
	ErrFolderNotEmpty = errors.New("folder is not empty")

	// Path errors
	ErrInvalidPath = errors.New("invalid path")

	// Capability key errors
	ErrKeyNotFound = errors.New("capability key not found")
	ErrKeyRevoked  = errors.New("capability key revoked")
	ErrKeyExpired  = errors.New("capability key expired")
	ErrScopeDenied = errors.New("path outside key scope")

	// Append errors
	ErrAppendNotFound  = errors.New("append entry not found")
	ErrInvalidAppendID = errors.New("invalid append id")
	ErrInvalidAuthor   = errors.New("invalid author")
	ErrInvalidRef      = errors.New("ref does not resolve to an append in this file")

	// Webhook errors
	ErrWebhookNotFound = errors.New("webhook subscription not found")

	// Owner / session errors
	ErrOwnerNotFound      = errors.New("owner not found")
	ErrDuplicateOwner     = errors.New("owner already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Generic
	ErrInvalidRequest = errors.New("invalid request")
	ErrRateLimited    = errors.New("rate limited")
	ErrQueryTooBroad  = errors.New("query scope too broad")
	ErrQueryTooLong   = errors.New("query too long")
)
