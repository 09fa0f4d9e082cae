// Package catalog holds the universities, faculties, departments and past
// essay questions a practice session can be based on.
//
// A Catalog is immutable once loaded; every accessor returns copies so callers
// cannot mutate shared state.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embedded []byte

// PastQuestion is a previously set essay question.
type PastQuestion struct {
	ID         string `yaml:"id" json:"id"`
	Year       int    `yaml:"year" json:"year"`
	Theme      string `yaml:"theme" json:"theme"`
	TimeLimit  int    `yaml:"time_limit" json:"time_limit"` // minutes
	University string `yaml:"-" json:"university"`
	Faculty    string `yaml:"-" json:"faculty"`
	Department string `yaml:"-" json:"department"`
}

// Department is the finest selection level and owns the past questions.
type Department struct {
	ID            string         `yaml:"id" json:"id"`
	Name          string         `yaml:"name" json:"name"`
	HasAO         bool           `yaml:"has_ao" json:"has_ao"`
	PastQuestions []PastQuestion `yaml:"past_questions" json:"past_questions"`
}

// Faculty groups departments.
type Faculty struct {
	ID          string       `yaml:"id" json:"id"`
	Name        string       `yaml:"name" json:"name"`
	HasAO       bool         `yaml:"has_ao" json:"has_ao"`
	Departments []Department `yaml:"departments" json:"departments"`
}

// University groups faculties.
type University struct {
	ID        string    `yaml:"id" json:"id"`
	Name      string    `yaml:"name" json:"name"`
	Faculties []Faculty `yaml:"faculties" json:"faculties"`
}

// Selection is a resolved university/faculty/department triple.
type Selection struct {
	UniversityID   string         `json:"university_id"`
	FacultyID      string         `json:"faculty_id"`
	DepartmentID   string         `json:"department_id"`
	UniversityName string         `json:"university"`
	FacultyName    string         `json:"faculty"`
	DepartmentName string         `json:"department"`
	PastQuestions  []PastQuestion `json:"past_questions"`
}

// Catalog is a read-only university table.
type Catalog struct {
	universities []University
}

type document struct {
	Universities []University `yaml:"universities"`
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(embedded)
}

// Load reads a catalog from path, or the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	if err := normalize(doc.Universities); err != nil {
		return nil, err
	}
	return &Catalog{universities: doc.Universities}, nil
}

// normalize fills question ownership names and rejects duplicate ids and bad time limits.
func normalize(us []University) error {
	uniIDs := map[string]struct{}{}
	questionIDs := map[string]struct{}{}
	for ui := range us {
		u := &us[ui]
		if err := claim(uniIDs, u.ID, "university"); err != nil {
			return err
		}
		facIDs := map[string]struct{}{}
		for fi := range u.Faculties {
			f := &u.Faculties[fi]
			if err := claim(facIDs, f.ID, "faculty "+u.ID); err != nil {
				return err
			}
			depIDs := map[string]struct{}{}
			for di := range f.Departments {
				d := &f.Departments[di]
				if err := claim(depIDs, d.ID, "department "+u.ID+"/"+f.ID); err != nil {
					return err
				}
				for qi := range d.PastQuestions {
					q := &d.PastQuestions[qi]
					if err := claim(questionIDs, q.ID, "question"); err != nil {
						return err
					}
					if q.TimeLimit <= 0 {
						return fmt.Errorf("%w: question %s has non-positive time limit %d", ErrInvalidCatalog, q.ID, q.TimeLimit)
					}
					q.University, q.Faculty, q.Department = u.Name, f.Name, d.Name
				}
			}
		}
	}
	return nil
}

func claim(seen map[string]struct{}, id, scope string) error {
	if id == "" {
		return fmt.Errorf("%w: empty %s id", ErrInvalidCatalog, scope)
	}
	if _, dup := seen[id]; dup {
		return fmt.Errorf("%w: duplicate %s id %q", ErrInvalidCatalog, scope, id)
	}
	seen[id] = struct{}{}
	return nil
}

// Universities returns every university.
func (c *Catalog) Universities() []University {
	out := make([]University, len(c.universities))
	for i, u := range c.universities {
		out[i] = u.clone()
	}
	return out
}

// Search returns universities whose own, faculty or department names contain query,
// ignoring case. An empty query returns everything.
func (c *Catalog) Search(query string) []University {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return c.Universities()
	}
	var out []University
	for _, u := range c.universities {
		if u.matches(q) {
			out = append(out, u.clone())
		}
	}
	return out
}

// Department resolves a selection by ids.
func (c *Catalog) Department(universityID, facultyID, departmentID string) (Selection, error) {
	for _, u := range c.universities {
		if u.ID != universityID {
			continue
		}
		for _, f := range u.Faculties {
			if f.ID != facultyID {
				continue
			}
			for _, d := range f.Departments {
				if d.ID != departmentID {
					continue
				}
				return Selection{
					UniversityID:   u.ID,
					FacultyID:      f.ID,
					DepartmentID:   d.ID,
					UniversityName: u.Name,
					FacultyName:    f.Name,
					DepartmentName: d.Name,
					PastQuestions:  append([]PastQuestion(nil), d.PastQuestions...),
				}, nil
			}
		}
	}
	return Selection{}, fmt.Errorf("%w: %s/%s/%s", ErrNotFound, universityID, facultyID, departmentID)
}

func (u University) matches(q string) bool {
	if strings.Contains(strings.ToLower(u.Name), q) {
		return true
	}
	for _, f := range u.Faculties {
		if strings.Contains(strings.ToLower(f.Name), q) {
			return true
		}
		for _, d := range f.Departments {
			if strings.Contains(strings.ToLower(d.Name), q) {
				return true
			}
		}
	}
	return false
}

func (u University) clone() University {
	u.Faculties = append([]Faculty(nil), u.Faculties...)
	for i := range u.Faculties {
		f := &u.Faculties[i]
		f.Departments = append([]Department(nil), f.Departments...)
		for j := range f.Departments {
			d := &f.Departments[j]
			d.PastQuestions = append([]PastQuestion(nil), d.PastQuestions...)
		}
	}
	return u
}
