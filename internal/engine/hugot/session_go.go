//go:build !ORT && !ALL

package hugot

import "github.com/knights-analytics/hugot"

// newSession uses the pure Go backend, which needs no shared libraries.
func newSession() (*hugot.Session, error) {
	return hugot.NewGoSession()
}
