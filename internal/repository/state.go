package repository

import (
	"errors"
	"fmt"
)

// State is a refresh phase.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateParsing
	StateCommitting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateParsing:
		return "parsing"
	case StateCommitting:
		return "committing"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Stage names the refresh step that failed.
type Stage string

const (
	StageFetch  Stage = "fetch"
	StageParse  Stage = "parse"
	StageCommit Stage = "commit"
)

var (
	// ErrRefreshFailed matches every *RefreshError.
	ErrRefreshFailed = errors.New("refresh failed")

	// ErrRefreshInProgress is returned when Refresh is called while another
	// refresh has not finished.
	ErrRefreshInProgress = errors.New("refresh already in progress")
)

// RefreshError reports which stage of a refresh failed. The cause chain is
// preserved, so errors.Is(err, domain.ErrTransport) and friends still work.
type RefreshError struct {
	Stage Stage
	Err   error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh failed at %s: %v", e.Stage, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

func (e *RefreshError) Is(target error) bool {
	return target == ErrRefreshFailed
}
