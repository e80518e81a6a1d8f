package common

import "errors"

// ErrStopped is returned by Stopped when quit has been closed.
var ErrStopped = errors.New("operation aborted: shutdown requested")

// Stopped returns ErrStopped if quit has been closed, nil otherwise.
// The active expiration cycle polls it between keys so a shutdown
// request interrupts it promptly, mirroring common.Stopped(quit) call
// sites in staged-sync loops.
func Stopped(quit <-chan struct{}) error {
	if quit == nil {
		return nil
	}
	select {
	case <-quit:
		return ErrStopped
	default:
		return nil
	}
}
