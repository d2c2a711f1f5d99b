// Package rom turns per-frame keypoints into movement angles, validates them
// against clinical ranges and accumulates the range of motion seen so far.
package rom

import (
	"errors"
	"fmt"

	"rom-stream-go/internal/angles"
	"rom-stream-go/internal/movement"
)

// ErrInvalidMovement is returned for (body_part, movement_type) pairs the
// registry does not know. It wraps movement.ErrNotFound.
var ErrInvalidMovement = fmt.Errorf("invalid movement: %w", movement.ErrNotFound)

// Calculator resolves movements through an injected registry.
type Calculator struct {
	Registry *movement.Registry
}

func NewCalculator(reg *movement.Registry) *Calculator {
	return &Calculator{Registry: reg}
}

// Definition resolves the pair or returns ErrInvalidMovement.
func (c *Calculator) Definition(bodyPart, movementType string) (*movement.Definition, error) {
	def, err := c.Registry.Resolve(bodyPart, movementType)
	if err != nil {
		if errors.Is(err, movement.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s/%s", ErrInvalidMovement, bodyPart, movementType)
		}
		return nil, err
	}
	return def, nil
}

// ComputeMovementAngles measures the movement's primary and secondary angles.
// Only the primary angle is side-qualified and transformed.
func (c *Calculator) ComputeMovementAngles(kp angles.Keypoints, bodyPart, movementType, side string) (angles.Set, error) {
	def, err := c.Definition(bodyPart, movementType)
	if err != nil {
		return nil, err
	}
	return def.ComputeAnglesFor(kp, side), nil
}

// PrimaryAngleKey returns the side-qualified primary angle name.
func (c *Calculator) PrimaryAngleKey(bodyPart, movementType, side string) (string, error) {
	def, err := c.Definition(bodyPart, movementType)
	if err != nil {
		return "", err
	}
	return def.PrimaryFor(side), nil
}

// RequiredKeypoints lists the landmarks the movement needs on the right side.
func (c *Calculator) RequiredKeypoints(bodyPart, movementType string) ([]string, error) {
	def, err := c.Definition(bodyPart, movementType)
	if err != nil {
		return nil, err
	}
	return def.RequiredKeypoints(), nil
}

// ValidateROM classifies value against the movement's safe and normal ranges.
func (c *Calculator) ValidateROM(value float64, bodyPart, movementType string) (Validation, error) {
	def, err := c.Definition(bodyPart, movementType)
	if err != nil {
		return Validation{}, err
	}
	return Classify(value, def.Normal, def.Safe), nil
}
