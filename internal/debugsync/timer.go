package debugsync

import (
	"time"

	"go.dedis.ch/ballot"
)

// Timeout is the duration after which a lock is reported.
var Timeout = 30 * time.Second

func startLockTimer(msg string, stack []byte) chan struct{} {
	done := make(chan struct{})
	timeout := Timeout

	go func(s []byte) {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-timer.C:
			ballot.Logger.Error().Str("stack", string(s)).Msg(msg)
		case <-done:
		}
	}(stack)

	return done
}
