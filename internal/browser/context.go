// internal/browser/context.go
package browser

import (
	"context"
)

// CombineContext returns a context that carries parentCtx's values (including
// the chromedp target) and is cancelled when either context is done.
func CombineContext(parentCtx, secondaryCtx context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(parentCtx)

	go func() {
		select {
		case <-secondaryCtx.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}
