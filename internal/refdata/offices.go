package refdata

import (
	"strings"

	"github.com/gogogo1024/campus-desk/internal/common"
)

// OfficeInput carries the editable office fields.
type OfficeInput struct {
	OfficeName   string   `json:"office_name"`
	BuildingName string   `json:"building_name"`
	FloorRoom    string   `json:"floor_room"`
	Description  string   `json:"description"`
	Keywords     []string `json:"keywords"`
}

func (in OfficeInput) validate() error {
	if strings.TrimSpace(in.OfficeName) == "" {
		return common.Invalid("office_name", "is required")
	}
	if strings.TrimSpace(in.BuildingName) == "" {
		return common.Invalid("building_name", "is required")
	}
	if strings.TrimSpace(in.FloorRoom) == "" {
		return common.Invalid("floor_room", "is required")
	}
	if Slug(in.OfficeName) == "" {
		return common.Invalid("office_name", "must contain letters or digits")
	}
	return nil
}

func (in OfficeInput) apply(o *Office) {
	o.OfficeName = strings.TrimSpace(in.OfficeName)
	o.BuildingName = strings.TrimSpace(in.BuildingName)
	o.FloorRoom = strings.TrimSpace(in.FloorRoom)
	o.Description = strings.TrimSpace(in.Description)
	o.Keywords = nil
	for _, k := range in.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			o.Keywords = append(o.Keywords, k)
		}
	}
}

func (s *Store) Offices() []Office {
	return s.Snapshot().Offices
}

// Office returns the office with id.
func (s *Store) Office(id string) (Office, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.doc.Offices {
		if o.ID == id {
			o.Keywords = append([]string(nil), o.Keywords...)
			return o, true
		}
	}
	return Office{}, false
}

func (s *Store) OfficeIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.doc.Offices))
	for _, o := range s.doc.Offices {
		ids = append(ids, o.ID)
	}
	return ids
}

// OfficeName resolves a display name for id.
func (s *Store) OfficeName(id string) (string, bool) {
	o, ok := s.Office(id)
	return o.OfficeName, ok
}

// CreateOffice adds an office whose id is the slug of its name.
func (s *Store) CreateOffice(in OfficeInput) (Office, error) {
	if err := in.validate(); err != nil {
		return Office{}, err
	}
	var created Office
	err := s.mutate(func(d *Document) error {
		id := Slug(in.OfficeName)
		for _, o := range d.Offices {
			if o.ID == id {
				return nameErr("office", id, common.ErrConflict)
			}
		}
		created = Office{ID: id}
		in.apply(&created)
		d.Offices = append(d.Offices, created)
		return nil
	})
	return created, err
}

// UpdateOffice edits an office in place; the id never changes. Mapping entries pick up the new name.
func (s *Store) UpdateOffice(id string, in OfficeInput) (Office, error) {
	if err := in.validate(); err != nil {
		return Office{}, err
	}
	var updated Office
	err := s.mutate(func(d *Document) error {
		for i := range d.Offices {
			if d.Offices[i].ID != id {
				continue
			}
			in.apply(&d.Offices[i])
			updated = d.Offices[i]
			for j := range d.Mapping {
				if d.Mapping[j].OfficeID == id {
					d.Mapping[j].OfficeName = updated.OfficeName
				}
			}
			return nil
		}
		return nameErr("office", id, common.ErrNotFound)
	})
	return updated, err
}

// DeleteOffice removes the office and the mapping entries routed to it. Tickets already
// queued for the office are left alone; they keep their assignment snapshot.
func (s *Store) DeleteOffice(id string) (Office, []MappingEntry, error) {
	var (
		deleted Office
		dropped []MappingEntry
	)
	err := s.mutate(func(d *Document) error {
		idx := -1
		for i, o := range d.Offices {
			if o.ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nameErr("office", id, common.ErrNotFound)
		}
		deleted = d.Offices[idx]
		d.Offices = append(d.Offices[:idx], d.Offices[idx+1:]...)
		kept := d.Mapping[:0]
		for _, m := range d.Mapping {
			if m.OfficeID == id {
				dropped = append(dropped, m)
				continue
			}
			kept = append(kept, m)
		}
		d.Mapping = kept
		return nil
	})
	return deleted, dropped, err
}
