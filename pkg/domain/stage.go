package domain

import "fmt"

// Stage is one of the closed set of workflow stages.
type Stage int

const (
	StageIdle Stage = iota
	StagePreparing
	StageWaitingForTrustline
	StageReadyToSign
	StageSubmitting
	StageDistributing
	StageSuccess
	StageError
)

var stageNames = map[Stage]string{
	StageIdle:                "IDLE",
	StagePreparing:           "PREPARING",
	StageWaitingForTrustline: "WAITING_FOR_TRUSTLINE",
	StageReadyToSign:         "READY_TO_SIGN",
	StageSubmitting:          "SUBMITTING",
	StageDistributing:        "DISTRIBUTING",
	StageSuccess:             "SUCCESS",
	StageError:               "ERROR",
}

// Stages returns every stage in progression order, ERROR last.
func Stages() []Stage {
	return []Stage{
		StageIdle,
		StagePreparing,
		StageWaitingForTrustline,
		StageReadyToSign,
		StageSubmitting,
		StageDistributing,
		StageSuccess,
		StageError,
	}
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Valid reports whether s belongs to the closed set.
func (s Stage) Valid() bool {
	_, ok := stageNames[s]
	return ok
}

// Terminal reports whether no further transition other than reset is possible.
func (s Stage) Terminal() bool {
	return s == StageSuccess
}

// Failable reports whether a failure in this stage may route to ERROR.
func (s Stage) Failable() bool {
	switch s {
	case StagePreparing, StageWaitingForTrustline, StageReadyToSign, StageSubmitting, StageDistributing:
		return true
	}
	return false
}

// InFlight reports whether the stage is entered only while a collaborator call is outstanding.
func (s Stage) InFlight() bool {
	switch s {
	case StagePreparing, StageSubmitting, StageDistributing:
		return true
	}
	return false
}

// MarshalText encodes the stage by name so snapshots stay readable.
func (s Stage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid stage %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a stage name.
func (s *Stage) UnmarshalText(text []byte) error {
	stage, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = stage
	return nil
}

// ParseStage resolves a stage by its name.
func ParseStage(name string) (Stage, error) {
	for stage, n := range stageNames {
		if n == name {
			return stage, nil
		}
	}
	return StageIdle, fmt.Errorf("unknown stage %q", name)
}
