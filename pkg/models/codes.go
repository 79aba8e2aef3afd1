package models

// ErrorCode is the closed set of machine-readable error codes returned in
// the API envelope. Codes are stable; clients switch on them.
type ErrorCode string

const (
	CodeInvalidKey          ErrorCode = "INVALID_KEY"
	CodeKeyRevoked          ErrorCode = "KEY_REVOKED"
	CodeKeyExpired          ErrorCode = "KEY_EXPIRED"
	CodeKeyNotFound         ErrorCode = "KEY_NOT_FOUND"
	CodePermissionDenied    ErrorCode = "PERMISSION_DENIED"
	CodeInvalidPath         ErrorCode = "INVALID_PATH"
	CodeInvalidRequest      ErrorCode = "INVALID_REQUEST"
	CodeInvalidAppendID     ErrorCode = "INVALID_APPEND_ID"
	CodeInvalidAuthor       ErrorCode = "INVALID_AUTHOR"
	CodeInvalidPattern      ErrorCode = "INVALID_PATTERN"
	CodeInvalidTimeout      ErrorCode = "INVALID_TIMEOUT"
	CodeQueryTooLong        ErrorCode = "QUERY_TOO_LONG"
	CodeQueryTooBroad       ErrorCode = "QUERY_TOO_BROAD"
	CodeFileNotFound        ErrorCode = "FILE_NOT_FOUND"
	CodeFileDeleted         ErrorCode = "FILE_DELETED"
	CodeFileAlreadyExists   ErrorCode = "FILE_ALREADY_EXISTS"
	CodeFolderNotFound      ErrorCode = "FOLDER_NOT_FOUND"
	CodeFolderAlreadyExists ErrorCode = "FOLDER_ALREADY_EXISTS"
	CodeFolderNotEmpty      ErrorCode = "FOLDER_NOT_EMPTY"
	CodeFolderExists        ErrorCode = "FOLDER_EXISTS"
	CodeConfirmPathMismatch ErrorCode = "CONFIRM_PATH_MISMATCH"
	CodeSourceNotFound      ErrorCode = "SOURCE_NOT_FOUND"
	CodeConflict            ErrorCode = "CONFLICT"
	CodePayloadTooLarge     ErrorCode = "PAYLOAD_TOO_LARGE"
	CodeQuotaExceeded       ErrorCode = "QUOTA_EXCEEDED"
	CodeAppendNotFound      ErrorCode = "APPEND_NOT_FOUND"
	CodeWorkspaceNotFound   ErrorCode = "WORKSPACE_NOT_FOUND"
	CodeWebhookNotFound     ErrorCode = "WEBHOOK_NOT_FOUND"
	CodeScopeDenied         ErrorCode = "SCOPE_DENIED"
	CodeRateLimited         ErrorCode = "RATE_LIMITED"
	CodeUnauthorized        ErrorCode = "UNAUTHORIZED"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeServerError         ErrorCode = "SERVER_ERROR"
)
