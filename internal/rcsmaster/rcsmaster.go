// Package rcsmaster reads one RCS ",v" master file: the admin section
// (head, branch, symbols, locks) and the list of per-revision log/text
// deltatext blocks, populating an rcs.File.
//
// This is a hand-rolled scanner, not a flex/bison-generated grammar: the
// MKSSI/RCS master grammar is treated as already-solved upstream input
// (see DESIGN.md's internal/rcsmaster section), and nothing in the example pack
// carries a parser-generator runtime to lean on.
package rcsmaster

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/datalight/mkssi-fast-export/internal/rcs"
	"github.com/datalight/mkssi-fast-export/internal/rcsnum"
)

// Read parses the full contents of one ",v" master file into an rcs.File.
// name is the file's relative path within the RCS tree (used for File.Name);
// masterPath is recorded verbatim for diagnostics. Read does not set
// File.Binary: the "expand" admin field is read and discarded.
func Read(data []byte, name, masterPath string) (*rcs.File, error) {
	s := &scanner{src: string(data)}

	f := &rcs.File{Name: name, MasterPath: masterPath, Symbols: map[string]rcsnum.Number{}}

	if err := parseAdmin(s, f); err != nil {
		return nil, fmt.Errorf("rcsmaster: %s: %w", name, err)
	}

	// "desc" is a free-text field we don't need; skip its @-delimited body.
	if s.peekWord() == "desc" {
		s.word()
		if _, _, err := s.atStringRaw(); err != nil {
			return nil, fmt.Errorf("rcsmaster: %s: desc: %w", name, err)
		}
	}

	for !s.atEOF() {
		s.skipSpace()
		if s.atEOF() {
			break
		}
		if err := parseDeltatext(s, f); err != nil {
			return nil, fmt.Errorf("rcsmaster: %s: %w", name, err)
		}
	}

	return f, nil
}

func parseAdmin(s *scanner, f *rcs.File) error {
	for {
		word := s.peekWord()
		switch word {
		case "head":
			s.word()
			numStr, err := s.untilSemi()
			if err != nil {
				return err
			}
			num, err := rcsnum.Parse(strings.TrimSpace(numStr))
			if err != nil {
				return fmt.Errorf("head: %w", err)
			}
			f.Head = num
		case "branch":
			s.word()
			numStr, err := s.untilSemi()
			if err != nil {
				return err
			}
			numStr = strings.TrimSpace(numStr)
			if numStr != "" {
				num, err := rcsnum.Parse(numStr)
				if err != nil {
					return fmt.Errorf("branch: %w", err)
				}
				f.DefaultBranch = num
			}
		case "access":
			s.word()
			if _, err := s.untilSemi(); err != nil {
				return err
			}
		case "symbols":
			s.word()
			body, err := s.untilSemi()
			if err != nil {
				return err
			}
			parseSymbols(body, f)
		case "locks":
			s.word()
			body, err := s.untilSemi()
			if err != nil {
				return err
			}
			parseLocks(body, f)
			// optional trailing "strict;"
			if s.peekWord() == "strict" {
				s.word()
				s.untilSemi()
			}
		case "comment":
			s.word()
			if _, err := s.atString(); err != nil {
				return err
			}
			if !s.consumeSemi() {
				return fmt.Errorf("comment: expected ';'")
			}
		case "expand":
			s.word()
			if _, err := s.atString(); err != nil {
				return err
			}
			if !s.consumeSemi() {
				return fmt.Errorf("expand: expected ';'")
			}
		case "":
			return fmt.Errorf("unexpected end of file in admin section")
		default:
			if isRevisionNumber(word) {
				return parseRevisionList(s, f)
			}
			// Unknown admin field: skip a generic "word ... ;" clause.
			s.word()
			if _, err := s.untilSemi(); err != nil {
				return err
			}
		}
	}
}

func parseSymbols(body string, f *rcs.File) {
	fields := strings.Fields(body)
	for _, field := range fields {
		colon := strings.IndexByte(field, ':')
		if colon == -1 {
			continue
		}
		name := field[:colon]
		num, err := rcsnum.Parse(field[colon+1:])
		if err == nil {
			f.Symbols[name] = num
		}
	}
}

func parseLocks(body string, f *rcs.File) {
	fields := strings.Fields(body)
	for i := 0; i+1 < len(fields); i += 2 {
		locker := strings.TrimSuffix(fields[i], ":")
		num, err := rcsnum.Parse(fields[i+1])
		if err == nil {
			f.Locks = append(f.Locks, rcs.Lock{Locker: locker, Revision: num})
		}
	}
}

// parseRevisionList reads the admin section's list of revision-number
// blocks (each: "date ...; author ...; state ...; branches ...; next ...;"
// plus optional "_mks_variant" commit-id extensions, which are skipped).
func parseRevisionList(s *scanner, f *rcs.File) error {
	for {
		word := s.peekWord()
		if !isRevisionNumber(word) {
			return nil
		}
		numStr := s.word()
		num, err := rcsnum.Parse(numStr)
		if err != nil {
			return fmt.Errorf("revision %s: %w", numStr, err)
		}
		v := &rcs.Version{Number: num}

		for {
			field := s.peekWord()
			switch field {
			case "date":
				s.word()
				raw, err := s.untilSemi()
				if err != nil {
					return err
				}
				v.Time = parseTimestamp(strings.TrimSpace(raw))
			case "author":
				s.word()
				raw, err := s.untilSemi()
				if err != nil {
					return err
				}
				v.Author = strings.TrimSpace(raw)
			case "state":
				s.word()
				raw, err := s.untilSemi()
				if err != nil {
					return err
				}
				v.State = strings.TrimSpace(raw)
			case "branches":
				s.word()
				raw, err := s.untilSemi()
				if err != nil {
					return err
				}
				for _, b := range strings.Fields(raw) {
					if bn, err := rcsnum.Parse(b); err == nil {
						v.Branches = append(v.Branches, bn)
					}
				}
			case "next":
				s.word()
				raw, err := s.untilSemi()
				if err != nil {
					return err
				}
				raw = strings.TrimSpace(raw)
				if raw != "" {
					if nn, err := rcsnum.Parse(raw); err == nil {
						v.Parent = nn
					}
				}
			default:
				if field == "" || field == "desc" || isRevisionNumber(field) {
					goto doneVersion
				}
				// Unrecognised per-revision field (an MKSSI extension):
				// skip its "word ... ;" clause.
				s.word()
				if _, err := s.untilSemi(); err != nil {
					return err
				}
			}
		}
	doneVersion:
		f.Versions = append(f.Versions, v)
		if !isRevisionNumber(s.peekWord()) {
			return nil
		}
	}
}

// parseDeltatext reads one "revnum\nlog\n@...@\ntext\n@...@" block.
func parseDeltatext(s *scanner, f *rcs.File) error {
	numStr := s.peekWord()
	if !isRevisionNumber(numStr) {
		return fmt.Errorf("expected revision number, found %q", numStr)
	}
	s.word()
	num, err := rcsnum.Parse(numStr)
	if err != nil {
		return fmt.Errorf("deltatext %s: %w", numStr, err)
	}

	if s.peekWord() != "log" {
		return fmt.Errorf("revision %s: expected 'log'", numStr)
	}
	s.word()
	log, err := s.atString()
	if err != nil {
		return fmt.Errorf("revision %s: log: %w", numStr, err)
	}

	// Optional MKSSI extension fields between log and text are skipped
	// generically until "text" is seen.
	for s.peekWord() != "text" {
		w := s.peekWord()
		if w == "" {
			return fmt.Errorf("revision %s: missing 'text'", numStr)
		}
		s.word()
		if _, err := s.untilSemi(); err != nil {
			return err
		}
	}
	s.word()
	body, offset, err := s.atStringRaw()
	if err != nil {
		return fmt.Errorf("revision %s: text: %w", numStr, err)
	}

	f.Patches = append(f.Patches, &rcs.Patch{
		Number: num,
		Log:    log,
		Offset: int64(offset),
		Length: int64(len(body)),
	})
	return nil
}

func parseTimestamp(raw string) rcs.Timestamp {
	parts := strings.Split(raw, ".")
	if len(parts) != 6 {
		return rcs.Timestamp{Text: raw}
	}
	ints := make([]int, 6)
	for i, p := range parts {
		ints[i], _ = strconv.Atoi(p)
	}
	year := ints[0]
	if year < 100 {
		year += 1900
	}
	when := time.Date(year, time.Month(ints[1]), ints[2], ints[3], ints[4], ints[5], 0, time.UTC)
	text := fmt.Sprintf("%04d/%02d/%02d %02d:%02d:%02dZ", year, ints[1], ints[2], ints[3], ints[4], ints[5])
	return rcs.Timestamp{When: when, Text: text}
}

func isRevisionNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != '.' && (r < '0' || r > '9') {
			return false
		}
	}
	return strings.Contains(s, ".")
}
