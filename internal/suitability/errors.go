package suitability

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// GeoprocessingError wraps a failure of the raster/vector engine: an invalid
// or empty layer, a raster that cannot be built, or raster/layer I/O.
type GeoprocessingError struct {
	Op  string
	Err error
}

func (e *GeoprocessingError) Error() string {
	return fmt.Sprintf("geoprocessing %s: %v", e.Op, e.Err)
}

func (e *GeoprocessingError) Unwrap() error {
	return e.Err
}

// geoprocessing marks err as an engine failure of op. nil stays nil.
func geoprocessing(op string, err error) error {
	if err == nil {
		return nil
	}
	return &GeoprocessingError{Op: op, Err: err}
}

// IsGeoprocessing reports whether err (or any error in its chain) is a
// GeoprocessingError.
func IsGeoprocessing(err error) bool {
	var ge *GeoprocessingError
	return errors.As(err, &ge)
}

// StepError reports the pipeline step that failed, the stage the run had
// reached, and the step's inputs.
type StepError struct {
	Step  string
	Stage Stage
	Args  map[string]any
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed at stage %s (args: %s): %v", e.Step, e.Stage, formatArgs(e.Args), e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func formatArgs(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, args[k])
	}
	return strings.Join(parts, " ")
}
