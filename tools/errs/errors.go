package errs

// Gateway error codes. The ranges mirror the taxonomy the REST tier
// already uses: 14xx auth, 14xx validation, 15xx server side.
const (
	ServerInternalError = 1500

	TokenMissingError = 1401
	TokenInvalidError = 1402
	TokenExpiredError = 1403

	ValidationError    = 1400
	RecordNotFoundErr  = 1404
	NotAuthorizedError = 1406
	DuplicateCallError = 1409
	PersistenceError   = 1501
	CallStateError     = 1502
)

var (
	ErrInternal = NewCodeError(ServerInternalError, "internal server error")

	// connection handshake
	ErrTokenMissing = NewCodeError(TokenMissingError, "auth token missing")
	ErrTokenInvalid = NewCodeError(TokenInvalidError, "auth token invalid")
	ErrTokenExpired = NewCodeError(TokenExpiredError, "auth token expired")

	// event handling; the connection stays open for these
	ErrValidation    = NewCodeError(ValidationError, "invalid payload")
	ErrNotFound      = NewCodeError(RecordNotFoundErr, "record not found")
	ErrNotAuthorized = NewCodeError(NotAuthorizedError, "not authorized")

	// call signaling
	ErrDuplicateCall = NewCodeError(DuplicateCallError, "call already in progress")
	ErrCallState     = NewCodeError(CallStateError, "call not in a valid state")

	// durable store failures are retryable by the caller
	ErrPersistence = NewCodeError(PersistenceError, "persistence failed")
)
