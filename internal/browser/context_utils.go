// internal/browser/context_utils.go
package browser

import "context"

// CombineContext returns a context that carries the values of primary (the
// chromedp tab context holding the CDP target) and is canceled when either
// primary or secondary (the caller's operation context) is done.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	stop := context.AfterFunc(secondary, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}
