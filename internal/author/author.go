// Package author loads an optional username -> git identity map and
// fabricates a plausible identity for any username the map doesn't cover.
package author

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Identity is a git committer identity: name, email, and the optional
// trailing timezone field of its author-map line (e.g. "-0500"), which is
// recorded but not used when commits are written.
type Identity struct {
	Name     string
	Email    string
	TZOffset string
}

// Map resolves MKSSI usernames to git identities, case-insensitively
// (MKSSI usernames are themselves case-insensitive).
type Map struct {
	entries  map[string]Identity
	unmapped map[string]bool
}

// New returns an empty Map.
func New() *Map {
	return &Map{entries: make(map[string]Identity), unmapped: make(map[string]bool)}
}

// Load parses an author-map file of lines shaped:
//
//	username = Display Name <email> [TZ]
//
// Blank lines and lines starting with '#' are ignored. A username mapped
// twice with differing identities is a fatal error; mapped twice with the
// identical identity is silently accepted (tolerates a concatenated map).
func Load(r io.Reader) (*Map, error) {
	m := New()
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		user, id, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("author map line %d: %w", lineno, err)
		}
		if err := m.add(user, id); err != nil {
			return nil, fmt.Errorf("author map line %d: %w", lineno, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

func parseLine(line string) (string, Identity, error) {
	eq := strings.IndexByte(line, '=')
	if eq == -1 {
		return "", Identity{}, fmt.Errorf("missing '='")
	}
	user := strings.TrimSpace(line[:eq])
	rest := strings.TrimSpace(line[eq+1:])
	if user == "" {
		return "", Identity{}, fmt.Errorf("empty username")
	}

	lt := strings.IndexByte(rest, '<')
	gt := strings.IndexByte(rest, '>')
	if lt == -1 || gt == -1 || gt < lt {
		return "", Identity{}, fmt.Errorf("expected 'Display Name <email>'")
	}
	name := strings.TrimSpace(rest[:lt])
	email := strings.TrimSpace(rest[lt+1 : gt])
	tz := strings.TrimSpace(rest[gt+1:])
	return user, Identity{Name: name, Email: email, TZOffset: tz}, nil
}

func (m *Map) add(user string, id Identity) error {
	key := strings.ToLower(user)
	if existing, ok := m.entries[key]; ok {
		if existing != id {
			return fmt.Errorf("username %q mapped to conflicting identities", user)
		}
		return nil
	}
	m.entries[key] = id
	return nil
}

// Resolve returns the git identity for username, fabricating one in the
// cvs-fast-export convention (same string for both display name and local
// part of the email) the first time an unmapped username is seen, and
// remembering it was unmapped so Unmapped can report it later.
func (m *Map) Resolve(username string) Identity {
	key := strings.ToLower(username)
	if id, ok := m.entries[key]; ok {
		return id
	}
	m.unmapped[key] = true
	return Identity{Name: username, Email: username}
}

// Unmapped returns every username (lower-cased, since MKSSI usernames are
// case-insensitive) that Resolve fell back to fabricating an identity for.
func (m *Map) Unmapped() []string {
	out := make([]string, 0, len(m.unmapped))
	for u := range m.unmapped {
		out = append(out, u)
	}
	return out
}
