package aof

import (
	"bytes"
	"strconv"
)

// TranslateForLog rewrites a just-applied command's argument vector
// into its canonical, replay-deterministic log form (spec.md §4.7):
// EXPIRE/PEXPIRE/EXPIREAT collapse to PEXPIREAT with an absolute
// deadline; SETEX/PSETEX split into a SET followed by a PEXPIREAT.
// Every other command is returned unchanged as the sole element. nowMs
// is the wall-clock time the command was applied, needed to resolve
// the relative forms.
func TranslateForLog(args [][]byte, nowMs int64) [][][]byte {
	if len(args) == 0 {
		return nil
	}
	switch upper(args[0]) {
	case "EXPIRE":
		if len(args) == 3 {
			if secs, ok := parseInt(args[2]); ok {
				return [][][]byte{pexpireat(args[1], nowMs+secs*1000)}
			}
		}
	case "PEXPIRE":
		if len(args) == 3 {
			if ms, ok := parseInt(args[2]); ok {
				return [][][]byte{pexpireat(args[1], nowMs+ms)}
			}
		}
	case "EXPIREAT":
		if len(args) == 3 {
			if secs, ok := parseInt(args[2]); ok {
				return [][][]byte{pexpireat(args[1], secs*1000)}
			}
		}
	case "SETEX":
		if len(args) == 4 {
			if secs, ok := parseInt(args[2]); ok {
				return [][][]byte{
					{[]byte("SET"), args[1], args[3]},
					pexpireat(args[1], nowMs+secs*1000),
				}
			}
		}
	case "PSETEX":
		if len(args) == 4 {
			if ms, ok := parseInt(args[2]); ok {
				return [][][]byte{
					{[]byte("SET"), args[1], args[3]},
					pexpireat(args[1], nowMs+ms),
				}
			}
		}
	}
	return [][][]byte{args}
}

func pexpireat(key []byte, deadlineMs int64) [][]byte {
	return [][]byte{[]byte("PEXPIREAT"), key, []byte(strconv.FormatInt(deadlineMs, 10))}
}

func parseInt(b []byte) (int64, bool) {
	n, err := strconv.ParseInt(string(b), 10, 64)
	return n, err == nil
}

func upper(b []byte) string {
	return string(bytes.ToUpper(b))
}
