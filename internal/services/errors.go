package services

import "errors"

// Lifecycle error taxonomy. Precondition violations are surfaced to the
// caller as rejected requests and never retried; StateConflict means the row
// transitioned under the caller's feet and a re-fetch is needed.
var (
	ErrStateConflict            = errors.New("project already transitioned")
	ErrAcceptanceWindowExpired  = errors.New("acceptance window expired")
	ErrProducerBlocked          = errors.New("producer blocked for this project")
	ErrUnauthorized             = errors.New("not authorized for this action")
	ErrProjectNotFound          = errors.New("project not found")
	ErrRevisionNotFound         = errors.New("revision not found")
	ErrRevisionOutstanding      = errors.New("another revision is already outstanding")
	ErrFeedbackAlreadySubmitted = errors.New("feedback already submitted")
	ErrNoRevisionsRemaining     = errors.New("no purchased revisions remaining")
	ErrNoProducerAssigned       = errors.New("no producer assigned")
)
