//go:build !linux

package driver

import "time"

func newTickSource(hz uint32) TickSource {
	if hz == 0 {
		hz = 1000
	}
	return &tickerSource{period: time.Second / time.Duration(hz), stop: make(chan struct{})}
}
