package common

// Error codes used across the payments API, mirroring the failure taxonomy of
// the notify protocol.
const (
	CodeConfigurationError = "CONFIGURATION_ERROR"
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodeSignatureMismatch  = "SIGNATURE_MISMATCH"
	CodeOrderNotFound      = "ORDER_NOT_FOUND"
	CodeStoreFailure       = "STORE_FAILURE"
	CodeInternal           = "INTERNAL"
)
