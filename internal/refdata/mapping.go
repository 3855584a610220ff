package refdata

import (
	"strings"

	"github.com/gogogo1024/campus-desk/internal/common"
)

func (s *Store) Mapping() []MappingEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]MappingEntry(nil), s.doc.Mapping...)
}

// Lookup resolves category to its office. Matching is exact and case-sensitive.
func (s *Store) Lookup(category string) (common.OfficeAssignment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.doc.Mapping {
		if m.Category == category {
			return common.OfficeAssignment{OfficeID: m.OfficeID, OfficeName: m.OfficeName}, true
		}
	}
	return common.OfficeAssignment{}, false
}

// SetMapping replaces the whole mapping. Every office id must exist; empty office names are
// filled from the office directory. A category may appear only once.
func (s *Store) SetMapping(entries []MappingEntry) ([]MappingEntry, error) {
	var out []MappingEntry
	err := s.mutate(func(d *Document) error {
		offices := make(map[string]Office, len(d.Offices))
		for _, o := range d.Offices {
			offices[o.ID] = o
		}
		seen := make(map[string]bool, len(entries))
		out = make([]MappingEntry, 0, len(entries))
		for i, e := range entries {
			e.Category = strings.TrimSpace(e.Category)
			e.OfficeID = strings.TrimSpace(e.OfficeID)
			e.OfficeName = strings.TrimSpace(e.OfficeName)
			if e.Category == "" {
				return common.Invalid("mapping", "entry %d: category is required", i)
			}
			if e.OfficeID == "" {
				return common.Invalid("mapping", "entry %d: office_id is required", i)
			}
			if seen[e.Category] {
				return common.Invalid("mapping", "category %q mapped twice", e.Category)
			}
			seen[e.Category] = true
			o, ok := offices[e.OfficeID]
			if !ok {
				return common.Invalid("mapping", "invalid office id: %s", e.OfficeID)
			}
			if e.OfficeName == "" {
				e.OfficeName = o.OfficeName
			}
			out = append(out, e)
		}
		d.Mapping = out
		return nil
	})
	return out, err
}

// DanglingMappings lists mapping entries whose office no longer exists (hand-edited files).
func (s *Store) DanglingMappings() []MappingEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make(map[string]bool, len(s.doc.Offices))
	for _, o := range s.doc.Offices {
		ids[o.ID] = true
	}
	var out []MappingEntry
	for _, m := range s.doc.Mapping {
		if !ids[m.OfficeID] {
			out = append(out, m)
		}
	}
	return out
}
