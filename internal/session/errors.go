package session

import (
	"errors"
	"fmt"
)

var (
	// ErrTurnInProgress rejects a second turn while one is still streaming.
	ErrTurnInProgress = errors.New("session: a reply is still in progress")

	// ErrUnknownMode is returned when a mode id is not in the table.
	ErrUnknownMode = errors.New("session: unknown mode")

	// ErrTemperatureRange rejects temperatures outside [MinTemperature, MaxTemperature].
	ErrTemperatureRange = errors.New("session: temperature out of range")

	// ErrEmptyMessage rejects blank user input.
	ErrEmptyMessage = errors.New("session: message is empty")
)

// ModelErrorHint accompanies completion failures shown to the user.
const ModelErrorHint = "If this is a model access issue, switch to a different mode or verify API access."

// Temperature bounds accepted by SetTemperature.
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
)

func checkTemperature(t float64) error {
	if t < MinTemperature || t > MaxTemperature {
		return fmt.Errorf("%w: %.2f not in [%.1f, %.1f]", ErrTemperatureRange, t, MinTemperature, MaxTemperature)
	}
	return nil
}
