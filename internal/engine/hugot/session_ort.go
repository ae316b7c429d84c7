//go:build ORT || ALL

package hugot

import "github.com/knights-analytics/hugot"

func newSession() (*hugot.Session, error) {
	return hugot.NewORTSession()
}
