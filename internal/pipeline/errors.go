package pipeline

import "fmt"

// Stage names a step of the terrain run.
type Stage string

// Stages in execution order.
const (
	StageBoundary  Stage = "boundary"
	StageCatalog   Stage = "catalog"
	StageFetch     Stage = "fetch"
	StageMerge     Stage = "merge"
	StageElevation Stage = "elevation_bands"
	StageSlope     Stage = "slope_mask"
	StageWrite     Stage = "write"
)

// StageError records which AOI and stage a fatal error came from.
type StageError struct {
	AOI   string
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: aoi %q: %s: %v", e.AOI, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(aoi string, stage Stage, err error) error {
	return &StageError{AOI: aoi, Stage: stage, Err: err}
}
