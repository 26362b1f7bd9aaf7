// Package actuate provides the remote-stimulus port and its Pavlok implementation.
package actuate

import (
	"context"
	"fmt"
)

// Kind selects the stimulus type.
type Kind string

const (
	KindZap  Kind = "zap"
	KindBeep Kind = "beep"
)

// Port delivers a stimulus to the wearer's device. A nil return means the
// device confirmed delivery; callers must treat any error as "no stimulus
// occurred" for accounting purposes.
type Port interface {
	Deliver(ctx context.Context, kind Kind, intensity int, reason string) error
}

func validIntensity(intensity int) error {
	if intensity < 1 || intensity > 100 {
		return fmt.Errorf("invalid intensity %d: must be between 1 and 100", intensity)
	}
	return nil
}
