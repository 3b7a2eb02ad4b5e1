package att

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCode is an ATT error code as carried in an Error Response
// (Bluetooth Core Spec v5.3 Vol 3, Part F, Section 3.4.1.1).
// ErrorCode implements error so attribute providers can return a code
// directly and have it reach the peer unchanged.
type ErrorCode uint8

// ATT Error Codes
const (
	ErrSuccess                       ErrorCode = 0x00 // Not an actual error, used internally
	ErrInvalidHandle                 ErrorCode = 0x01
	ErrReadNotPermitted              ErrorCode = 0x02
	ErrWriteNotPermitted             ErrorCode = 0x03
	ErrInvalidPDU                    ErrorCode = 0x04
	ErrInsufficientAuthentication    ErrorCode = 0x05
	ErrRequestNotSupported           ErrorCode = 0x06
	ErrInvalidOffset                 ErrorCode = 0x07
	ErrInsufficientAuthorization     ErrorCode = 0x08
	ErrPrepareQueueFull              ErrorCode = 0x09
	ErrAttributeNotFound             ErrorCode = 0x0A
	ErrAttributeNotLong              ErrorCode = 0x0B
	ErrInsufficientEncryptionKeySize ErrorCode = 0x0C
	ErrInvalidAttributeValueLength   ErrorCode = 0x0D
	ErrUnlikelyError                 ErrorCode = 0x0E
	ErrInsufficientEncryption        ErrorCode = 0x0F
	ErrUnsupportedGroupType          ErrorCode = 0x10
	ErrInsufficientResources         ErrorCode = 0x11

	// Application Error codes (0x80 - 0x9F)
	ErrApplicationErrorStart ErrorCode = 0x80
	ErrApplicationErrorEnd   ErrorCode = 0x9F

	// Common Profile and Service Error Codes (0xE0 - 0xFF)
	ErrCommonErrorStart ErrorCode = 0xE0
	ErrCommonErrorEnd   ErrorCode = 0xFF

	ErrWriteRequestRejected       ErrorCode = 0xFC
	ErrCCCDImproperlyConfigured   ErrorCode = 0xFD
	ErrProcedureAlreadyInProgress ErrorCode = 0xFE
	ErrOutOfRange                 ErrorCode = 0xFF
)

// ErrorNames maps error codes to human-readable names
var ErrorNames = map[ErrorCode]string{
	ErrSuccess:                       "Success",
	ErrInvalidHandle:                 "Invalid Handle",
	ErrReadNotPermitted:              "Read Not Permitted",
	ErrWriteNotPermitted:             "Write Not Permitted",
	ErrInvalidPDU:                    "Invalid PDU",
	ErrInsufficientAuthentication:    "Insufficient Authentication",
	ErrRequestNotSupported:           "Request Not Supported",
	ErrInvalidOffset:                 "Invalid Offset",
	ErrInsufficientAuthorization:     "Insufficient Authorization",
	ErrPrepareQueueFull:              "Prepare Queue Full",
	ErrAttributeNotFound:             "Attribute Not Found",
	ErrAttributeNotLong:              "Attribute Not Long",
	ErrInsufficientEncryptionKeySize: "Insufficient Encryption Key Size",
	ErrInvalidAttributeValueLength:   "Invalid Attribute Value Length",
	ErrUnlikelyError:                 "Unlikely Error",
	ErrInsufficientEncryption:        "Insufficient Encryption",
	ErrUnsupportedGroupType:          "Unsupported Group Type",
	ErrInsufficientResources:         "Insufficient Resources",
	ErrWriteRequestRejected:          "Write Request Rejected",
	ErrCCCDImproperlyConfigured:      "CCCD Improperly Configured",
	ErrProcedureAlreadyInProgress:    "Procedure Already in Progress",
	ErrOutOfRange:                    "Out of Range",
}

func (c ErrorCode) Error() string {
	if name, ok := ErrorNames[c]; ok {
		return "att: " + name
	}
	switch {
	case c >= ErrApplicationErrorStart && c <= ErrApplicationErrorEnd:
		return fmt.Sprintf("att: Application Error (0x%02X)", uint8(c))
	case c >= ErrCommonErrorStart:
		return fmt.Sprintf("att: Common Profile Error (0x%02X)", uint8(c))
	default:
		return fmt.Sprintf("att: Unknown Error (0x%02X)", uint8(c))
	}
}

// Local failures. These never travel on the wire as-is; the server maps
// them to an ErrorCode where a response is due.
var (
	// ErrMalformedUUID means a UUID field was neither 2 nor 16 bytes.
	ErrMalformedUUID = errors.New("att: malformed uuid")

	// ErrInvalidHandleRange means start was 0 or greater than end.
	ErrInvalidHandleRange = errors.New("att: invalid handle range")

	// ErrTruncatedPDU means a PDU ended before a fixed-size field.
	ErrTruncatedPDU = errors.New("att: truncated pdu")

	// ErrInvalidPDUSize means a frame was empty or longer than the session MTU.
	ErrInvalidPDUSize = errors.New("att: invalid pdu size")

	// ErrNotPermitted is returned by providers that refuse an access. The
	// server reports it as Read Not Permitted or Write Not Permitted.
	ErrNotPermitted = errors.New("att: not permitted")

	// ErrIndicationInFlight means an indication is still awaiting confirmation.
	ErrIndicationInFlight = errors.New("att: indication already in flight")

	// ErrNoIndicationPending means a confirmation arrived with nothing to confirm.
	ErrNoIndicationPending = errors.New("att: confirmation without pending indication")

	// ErrConnectionClosed is delivered to indication waiters when the
	// connection goes away before the peer confirms.
	ErrConnectionClosed = errors.New("att: connection closed")
)

// Error represents an ATT error
type Error struct {
	Code          ErrorCode
	RequestOpcode uint8
	Handle        Handle
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("ATT Error: %s (handle %s, request %s)",
		e.Code.name(), e.Handle, OpcodeName(e.RequestOpcode))
}

// Unwrap lets errors.Is match an *Error against its ErrorCode.
func (e *Error) Unwrap() error { return e.Code }

func (c ErrorCode) name() string {
	if name, ok := ErrorNames[c]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", uint8(c))
}

// Response returns the Error Response PDU that reports e.
func (e *Error) Response() *ErrorResponse {
	return &ErrorResponse{RequestOpcode: e.RequestOpcode, Handle: e.Handle, ErrorCode: e.Code}
}

// NewError creates a new ATT error
func NewError(code ErrorCode, requestOpcode uint8, handle Handle) *Error {
	return &Error{
		Code:          code,
		RequestOpcode: requestOpcode,
		Handle:        handle,
	}
}

// IsATTError checks if an error is an ATT error with a specific code
func IsATTError(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// GetErrorCode returns the ATT error code from an error, or 0 if not an ATT error
func GetErrorCode(err error) ErrorCode {
	var attErr *Error
	if errors.As(err, &attErr) {
		return attErr.Code
	}
	var code ErrorCode
	if errors.As(err, &code) {
		return code
	}
	return ErrSuccess
}

// errorCodeFor maps a provider or decode failure to the code reported to
// the peer for a request with the given opcode.
func errorCodeFor(opcode uint8, err error) ErrorCode {
	switch {
	case err == nil:
		return ErrSuccess
	case errors.Is(err, ErrNotPermitted):
		switch opcode {
		case OpWriteRequest, OpWriteCommand, OpSignedWriteCommand,
			OpPrepareWriteRequest, OpExecuteWriteRequest:
			return ErrWriteNotPermitted
		}
		return ErrReadNotPermitted
	case errors.Is(err, ErrMalformedUUID),
		errors.Is(err, ErrInvalidHandleRange),
		errors.Is(err, ErrTruncatedPDU):
		return ErrInvalidPDU
	}
	if code := GetErrorCode(err); code != ErrSuccess {
		return code
	}
	return ErrUnlikelyError
}
