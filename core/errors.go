package core

import (
	"errors"
	"fmt"
)

// ErrIncompleteLayerRecord means a layer lacks a spot stream or its streams disagree in length.
var ErrIncompleteLayerRecord = errors.New("incomplete layer record")

// LayerError locates a layer failure inside the plan.
type LayerError struct {
	BeamNumber int
	BeamName   string
	LayerIndex int // control point index of the layer start
	Err        error
}

func (e *LayerError) Error() string {
	if e.BeamName != "" {
		return fmt.Sprintf("beam %d (%s) layer at control point %d: %v", e.BeamNumber, e.BeamName, e.LayerIndex, e.Err)
	}
	return fmt.Sprintf("beam %d layer at control point %d: %v", e.BeamNumber, e.LayerIndex, e.Err)
}

func (e *LayerError) Unwrap() error { return e.Err }

// ErrNoDeliveryData means a layer or its log has nothing to compare.
var ErrNoDeliveryData = errors.New("no delivery data to compare")
