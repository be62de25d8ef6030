package ingest

import "errors"

// Sentinel errors for the ingest service layer.
var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedPayload = errors.New("malformed webhook payload")
)
