package safe

import (
	"MedLink/logger"
)

// Go starts a goroutine that recovers from panic, so a single
// connection's fault never takes down the whole gateway.
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
