package ot

import (
	"errors"
	"net/http"
)

// Sentinel errors. The text of each error is the code surfaced over the wire.
var (
	ErrOpMalformed         = errors.New("OP_MALFORMED")
	ErrOpOutOfBounds       = errors.New("OP_OUT_OF_BOUNDS")
	ErrUnexpectedAck       = errors.New("UNEXPECTED_ACK")
	ErrRevisionMismatch    = errors.New("REVISION_MISMATCH")
	ErrDocumentNotFound    = errors.New("DOCUMENT_NOT_FOUND")
	ErrDocumentExists      = errors.New("DOCUMENT_EXISTS")
	ErrTypeUnknown         = errors.New("TYPE_UNKNOWN")
	ErrTypeConflict        = errors.New("TYPE_CONFLICT")
	ErrConcurrencyConflict = errors.New("CONCURRENCY_CONFLICT")
	ErrStorageUnavailable  = errors.New("STORAGE_UNAVAILABLE")
)

// Code maps an error onto its wire code. Unrecognized errors are INTERNAL.
func Code(err error) string {
	for _, sentinel := range []error{
		ErrOpMalformed, ErrOpOutOfBounds, ErrUnexpectedAck,
		ErrRevisionMismatch, ErrDocumentNotFound, ErrDocumentExists,
		ErrTypeUnknown, ErrTypeConflict, ErrConcurrencyConflict,
		ErrStorageUnavailable,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "INTERNAL"
}

// HTTPStatus maps an error onto the status the HTTP surface answers with.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTypeUnknown),
		errors.Is(err, ErrOpMalformed),
		errors.Is(err, ErrOpOutOfBounds):
		return http.StatusBadRequest
	case errors.Is(err, ErrDocumentExists),
		errors.Is(err, ErrRevisionMismatch),
		errors.Is(err, ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
