// Package leaguedir loads the league roster file: which leagues
// exist, who plays in each, and which phone numbers belong to whom.
// The loaded directory is read-only; the resolver never mutates it.
package leaguedir

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type filePlayer struct {
	Name   string   `yaml:"name"`
	Phones []string `yaml:"phones"`
}

type fileLeague struct {
	ID      int          `yaml:"id"`
	Name    string       `yaml:"name"`
	Players []filePlayer `yaml:"players"`
}

type fileSchema struct {
	Leagues []fileLeague `yaml:"leagues"`
}

// Roster is one league's player list with a normalized phone index.
type Roster struct {
	LeagueID int
	Name     string

	players []string
	phones  map[string]string
}

// Players returns display names in file order.
func (r *Roster) Players() []string { return r.players }

// PlayerByPhone looks up a fully-normalized phone number.
func (r *Roster) PlayerByPhone(phone string) (string, bool) {
	name, ok := r.phones[phone]
	return name, ok
}

// PhoneNumbers returns the normalized directory keys in sorted order,
// for suffix scans that need deterministic iteration.
func (r *Roster) PhoneNumbers() []string {
	keys := make([]string, 0, len(r.phones))
	for k := range r.phones {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Directory holds every league roster, keyed by league id.
type Directory struct {
	rosters map[int]*Roster
	order   []int
}

// Roster returns the roster for one league.
func (d *Directory) Roster(leagueID int) (*Roster, bool) {
	r, ok := d.rosters[leagueID]
	return r, ok
}

// Rosters returns all rosters in ascending league-id order.
func (d *Directory) Rosters() []*Roster {
	out := make([]*Roster, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.rosters[id])
	}
	return out
}

// Len reports the number of leagues.
func (d *Directory) Len() int { return len(d.order) }

// Load reads and parses the roster file at path.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read league file: %w", err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("league file %s: %w", path, err)
	}
	return d, nil
}

// Parse builds a directory from YAML bytes, normalizing every phone
// number and rejecting rosters that could make resolution ambiguous
// inside a single league.
func Parse(data []byte) (*Directory, error) {
	var schema fileSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(schema.Leagues) == 0 {
		return nil, fmt.Errorf("no leagues defined")
	}

	d := &Directory{rosters: make(map[int]*Roster, len(schema.Leagues))}
	for _, fl := range schema.Leagues {
		if fl.ID <= 0 {
			return nil, fmt.Errorf("league %q: id must be positive, got %d", fl.Name, fl.ID)
		}
		if _, dup := d.rosters[fl.ID]; dup {
			return nil, fmt.Errorf("league id %d defined twice", fl.ID)
		}
		r := &Roster{
			LeagueID: fl.ID,
			Name:     strings.TrimSpace(fl.Name),
			phones:   make(map[string]string),
		}
		seenNames := make(map[string]struct{})
		for _, fp := range fl.Players {
			name := strings.TrimSpace(fp.Name)
			if name == "" {
				return nil, fmt.Errorf("league %d: player with empty name", fl.ID)
			}
			lower := strings.ToLower(name)
			if _, dup := seenNames[lower]; dup {
				return nil, fmt.Errorf("league %d: player %q listed twice", fl.ID, name)
			}
			seenNames[lower] = struct{}{}
			r.players = append(r.players, name)

			for _, raw := range fp.Phones {
				phone := NormalizePhone(raw)
				if phone == "" {
					return nil, fmt.Errorf("league %d player %q: phone %q has no digits", fl.ID, name, raw)
				}
				if owner, dup := r.phones[phone]; dup && owner != name {
					return nil, fmt.Errorf("league %d: phone %s maps to both %q and %q", fl.ID, phone, owner, name)
				}
				r.phones[phone] = name
			}
		}
		d.rosters[fl.ID] = r
		d.order = append(d.order, fl.ID)
	}
	sort.Ints(d.order)
	return d, nil
}

// NormalizePhone reduces a phone spelling to bare digits and prefixes
// the country code when a plain 10-digit number is given. Shorter
// strings pass through as-is so partial directory entries can still
// suffix-match.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 10 {
		return "1" + digits
	}
	return digits
}
