// Package listing parses line-oriented LIST output into typed entries.
package listing

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"unicode"

	"digital.vasic.ftpfetch/pkg/faults"
)

// Type classifies a directory entry by the first byte of its mode field.
type Type int

const (
	TypeOther Type = iota
	TypeFile
	TypeDirectory
	TypeLink
)

func (t Type) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDirectory:
		return "directory"
	case TypeLink:
		return "link"
	default:
		return "other"
	}
}

// Entry is one parsed line of a directory listing.
type Entry struct {
	RemoteDir string
	Name      string
	Type      Type
	Size      uint64
	Owner     string
	Group     string
}

// Path returns the remote path of the entry.
func (e Entry) Path() string {
	return path.Join(e.RemoteDir, e.Name)
}

// minFields is the smallest field count of a Unix-style LIST line:
// mode, links, owner, group, size, month, day, time, name.
const minFields = 9

// Parse parses one LIST line into an Entry, e.g.
//
//	drwxr-x---+  2 ftpadm   marnet   7 Sep 24 13:27 Data00
func Parse(line, remoteDir string) (Entry, error) {
	fields := strings.Fields(line)
	if len(fields) < minFields {
		return Entry{}, &faults.ParseError{
			Line:   line,
			Reason: fmt.Sprintf("%d field(s), need at least %d", len(fields), minFields),
		}
	}
	size, err := strconv.ParseUint(fields[4], 10, 64)
	if err != nil {
		return Entry{}, &faults.ParseError{Line: line, Reason: "size field is not numeric"}
	}
	return Entry{
		RemoteDir: remoteDir,
		Name:      nameField(line),
		Type:      typeOf(fields[0]),
		Size:      size,
		Owner:     fields[2],
		Group:     fields[3],
	}, nil
}

// ParseAll parses every line it can. Unparseable lines and entries typed
// Other are dropped; a bad line never fails the whole listing.
func ParseAll(lines []string, remoteDir string) []Entry {
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		entry, err := Parse(line, remoteDir)
		if err != nil || entry.Type == TypeOther {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

func typeOf(mode string) Type {
	switch mode[0] {
	case 'd':
		return TypeDirectory
	case '-':
		return TypeFile
	case 'l':
		return TypeLink
	default:
		return TypeOther
	}
}

// nameField returns everything after the eighth whitespace-separated
// field. Names may contain spaces, so strings.Fields cannot be used for
// this part of the line.
func nameField(line string) string {
	const fieldsBeforeName = 8
	seen := 0
	inField := false
	for i, r := range line {
		if unicode.IsSpace(r) {
			if inField {
				seen++
				inField = false
			}
			continue
		}
		if !inField && seen == fieldsBeforeName {
			return strings.TrimRight(line[i:], "\r\n")
		}
		inField = true
	}
	return ""
}
