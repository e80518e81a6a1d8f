package common

import "fmt"

// StorageSize is a byte count that renders itself in human units
// (KiB/MiB/GiB/TiB) for progress log.Info calls.
type StorageSize float64

func (s StorageSize) String() string {
	switch {
	case s > 1099511627776:
		return fmt.Sprintf("%.2fTiB", s/1099511627776)
	case s > 1073741824:
		return fmt.Sprintf("%.2fGiB", s/1073741824)
	case s > 1048576:
		return fmt.Sprintf("%.2fMiB", s/1048576)
	case s > 1024:
		return fmt.Sprintf("%.2fKiB", s/1024)
	default:
		return fmt.Sprintf("%.2fB", s)
	}
}
