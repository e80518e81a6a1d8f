package aof

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/coreworks/memkv/log"
)

// ErrMultiAtEOF is returned when the log ends while the synthetic
// client is still inside a MULTI block (spec.md §4.7: "a client left
// in MULTI at EOF is a fatal corruption").
var ErrMultiAtEOF = errors.New("aof: truncated log ends inside MULTI")

// Dispatcher replays one command against live state, mirroring the
// synthetic in-process client spec.md §4.7 describes. Dispatch
// applies args against database dbID, discarding any reply. InMulti
// reports whether the client is currently queued inside a MULTI
// block, for the fatal-at-EOF check.
type Dispatcher interface {
	Dispatch(dbID int, args [][]byte) error
	InMulti() bool
}

// Load replays the log at path through dispatch. If tolerateTruncated
// is set (aof-load-truncated), a truncated final record is silently
// dropped instead of failing the load; a client left mid-MULTI is
// always fatal, truncation tolerance notwithstanding, since the
// in-flight transaction itself is lost either way.
func Load(path string, dispatch Dispatcher, tolerateTruncated bool) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	cr := &countingReader{r: f}
	br := bufio.NewReader(cr)

	dbID := 0
	for {
		offsetBefore := cr.n - int64(br.Buffered())
		args, err := ReadCommand(br)
		if err != nil {
			if err == io.EOF {
				break
			}
			if errors.Is(err, ErrCorrupt) && tolerateTruncated {
				log.Warn("aof: truncating log at last fully-parsed command", "offset", offsetBefore)
				if terr := f.Truncate(offsetBefore); terr != nil {
					return terr
				}
				break
			}
			return err
		}

		if len(args) == 2 && upper(args[0]) == "SELECT" {
			n, perr := strconv.Atoi(string(args[1]))
			if perr != nil {
				return fmt.Errorf("%w: bad SELECT argument %q", ErrCorrupt, args[1])
			}
			dbID = n
			continue
		}

		if err := dispatch.Dispatch(dbID, args); err != nil {
			return err
		}
	}

	if dispatch.InMulti() {
		return ErrMultiAtEOF
	}
	return nil
}

// countingReader tracks total bytes read so Load can recover the file
// offset of the last fully-parsed command even though bufio.Reader
// itself reads ahead in larger chunks.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
