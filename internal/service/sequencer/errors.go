package sequencer

import "errors"

var (
	ErrAlreadyRunning  = errors.New("sequencer already running")
	ErrSweepInProgress = errors.New("another sweep is in progress")
	ErrNoSequence      = errors.New("no active follow-up sequence")
)
