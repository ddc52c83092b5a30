package safe

import (
	"ChatWire/logger"
)

// Go starts a goroutine that recovers from panic, so best-effort side
// effects (presence flags, last-seen stamps) can never take down the
// gateway.
func Go(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[safe.Go] panic recovered: %v", r)
			}
		}()
		f()
	}()
}
