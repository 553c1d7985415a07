package domain

import (
	"fmt"
	"sort"
)

// Event is something that happened to a workflow and may move it to another stage.
type Event string

const (
	EventStart              Event = "start"
	EventTrustlinePending   Event = "trustline_pending"
	EventTrustlineConfirmed Event = "trustline_confirmed"
	EventSigned             Event = "signed"
	EventSubmitted          Event = "submitted"
	EventDistributed        Event = "distributed"
	EventFail               Event = "fail"
	EventReset              Event = "reset"

	// Retry events re-enter the stage whose entry action failed.
	EventRetryPrepare    Event = "retry_prepare"
	EventRetryTrustline  Event = "retry_trustline"
	EventRetrySign       Event = "retry_sign"
	EventRetrySubmit     Event = "retry_submit"
	EventRetryDistribute Event = "retry_distribute"
)

type edge struct {
	from  Stage
	event Event
}

// transitions is the only place where legal stage changes are declared.
// EventFail and EventReset are handled by rules in Transition.
var transitions = map[edge]Stage{
	{StageIdle, EventStart}: StagePreparing,

	{StagePreparing, EventTrustlinePending}:             StageWaitingForTrustline,
	{StagePreparing, EventTrustlineConfirmed}:           StageReadyToSign,
	{StageWaitingForTrustline, EventTrustlineConfirmed}: StageReadyToSign,
	{StageReadyToSign, EventSigned}:                     StageSubmitting,
	{StageSubmitting, EventSubmitted}:                   StageDistributing,
	{StageDistributing, EventDistributed}:               StageSuccess,
	{StageError, EventRetryPrepare}:                     StagePreparing,
	{StageError, EventRetryTrustline}:                   StageWaitingForTrustline,
	{StageError, EventRetrySign}:                        StageReadyToSign,
	{StageError, EventRetrySubmit}:                      StageSubmitting,
	{StageError, EventRetryDistribute}:                  StageDistributing,
}

var retryEvents = map[Stage]Event{
	StagePreparing:           EventRetryPrepare,
	StageWaitingForTrustline: EventRetryTrustline,
	StageReadyToSign:         EventRetrySign,
	StageSubmitting:          EventRetrySubmit,
	StageDistributing:        EventRetryDistribute,
}

// Transition returns the stage reached by applying event to from.
// Any pair not declared is rejected with ErrIllegalTransition.
func Transition(from Stage, event Event) (Stage, error) {
	if !from.Valid() {
		return from, fmt.Errorf("%w: unknown stage %d", ErrIllegalTransition, int(from))
	}

	switch event {
	case EventReset:
		return StageIdle, nil
	case EventFail:
		if from.Failable() {
			return StageError, nil
		}
		return from, fmt.Errorf("%w: cannot fail from %s", ErrIllegalTransition, from)
	}

	to, ok := transitions[edge{from, event}]
	if !ok {
		return from, fmt.Errorf("%w: %s does not accept %q", ErrIllegalTransition, from, event)
	}
	return to, nil
}

// RetryEvent returns the event that re-enters failed from ERROR.
func RetryEvent(failed Stage) (Event, error) {
	ev, ok := retryEvents[failed]
	if !ok {
		return "", fmt.Errorf("%w: nothing to retry for %s", ErrIllegalTransition, failed)
	}
	return ev, nil
}

// Edge is one declared stage change.
type Edge struct {
	From  Stage
	Event Event
	To    Stage
}

// Edges lists the declared transitions ordered by source stage, failures
// included. Reset is left out because every stage accepts it.
func Edges() []Edge {
	var out []Edge
	for _, from := range Stages() {
		var byEvent []Edge
		for e, to := range transitions {
			if e.from == from {
				byEvent = append(byEvent, Edge{From: from, Event: e.event, To: to})
			}
		}
		sort.Slice(byEvent, func(i, j int) bool { return byEvent[i].To < byEvent[j].To })
		out = append(out, byEvent...)
		if from.Failable() {
			out = append(out, Edge{From: from, Event: EventFail, To: StageError})
		}
	}
	return out
}
