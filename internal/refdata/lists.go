package refdata

import (
	"strings"

	"github.com/gogogo1024/campus-desk/internal/common"
)

func (s *Store) Categories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedCopy(s.doc.Categories)
}

func (s *Store) Courses() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedCopy(s.doc.Courses)
}

func (s *Store) HasCategory(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return indexOf(s.doc.Categories, name) >= 0
}

func (s *Store) HasCourse(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return indexOf(s.doc.Courses, name) >= 0
}

func (s *Store) AddCategory(name string) error {
	return s.mutate(func(d *Document) error {
		return addName(&d.Categories, "category", name)
	})
}

// RenameCategory renames a category and every mapping entry that routes it.
func (s *Store) RenameCategory(from, to string) error {
	return s.mutate(func(d *Document) error {
		if err := renameName(d.Categories, "category", from, to); err != nil {
			return err
		}
		for i := range d.Mapping {
			if d.Mapping[i].Category == from {
				d.Mapping[i].Category = strings.TrimSpace(to)
			}
		}
		return nil
	})
}

// DeleteCategory removes a category and its mapping entry.
func (s *Store) DeleteCategory(name string) error {
	return s.mutate(func(d *Document) error {
		if err := deleteName(&d.Categories, "category", name); err != nil {
			return err
		}
		kept := d.Mapping[:0]
		for _, m := range d.Mapping {
			if m.Category != name {
				kept = append(kept, m)
			}
		}
		d.Mapping = kept
		return nil
	})
}

func (s *Store) AddCourse(name string) error {
	return s.mutate(func(d *Document) error {
		return addName(&d.Courses, "course", name)
	})
}

func (s *Store) RenameCourse(from, to string) error {
	return s.mutate(func(d *Document) error {
		return renameName(d.Courses, "course", from, to)
	})
}

func (s *Store) DeleteCourse(name string) error {
	return s.mutate(func(d *Document) error {
		return deleteName(&d.Courses, "course", name)
	})
}

func validName(kind, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", common.Invalid(kind, "name is required")
	}
	if len([]rune(name)) > 100 {
		return "", common.Invalid(kind, "name cannot exceed 100 characters")
	}
	return name, nil
}

func addName(list *[]string, kind, name string) error {
	name, err := validName(kind, name)
	if err != nil {
		return err
	}
	if indexOf(*list, name) >= 0 {
		return nameErr(kind, name, common.ErrConflict)
	}
	*list = append(*list, name)
	return nil
}

func renameName(list []string, kind, from, to string) error {
	to, err := validName(kind, to)
	if err != nil {
		return err
	}
	i := indexOf(list, from)
	if i < 0 {
		return nameErr(kind, from, common.ErrNotFound)
	}
	if from != to && indexOf(list, to) >= 0 {
		return nameErr(kind, to, common.ErrConflict)
	}
	list[i] = to
	return nil
}

func deleteName(list *[]string, kind, name string) error {
	i := indexOf(*list, name)
	if i < 0 {
		return nameErr(kind, name, common.ErrNotFound)
	}
	*list = append((*list)[:i], (*list)[i+1:]...)
	return nil
}
