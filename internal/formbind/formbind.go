// Package formbind binds a submitter's form to the payload document stored for
// an activity. The section layout comes from the embedded sections.yaml.
package formbind

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/vpriesta/mds-form/internal/document"
)

//go:embed sections.yaml
var sectionsFS embed.FS

// UntitledActivity is shown when a payload carries no title.
const UntitledActivity = "(Untitled Activity)"

var (
	// ErrUnknownSection is returned for a section name not in the schema.
	ErrUnknownSection = errors.New("unknown form section")
	// ErrSectionKind is returned when a section value has the wrong shape.
	ErrSectionKind = errors.New("section value has the wrong kind")
)

// Kind is the shape of a section value.
type Kind string

const (
	KindObject Kind = "object"
	KindList   Kind = "list"
)

// Section describes one top-level member of the payload.
type Section struct {
	Name  string `yaml:"name"`
	Title string `yaml:"title"`
	Kind  Kind   `yaml:"kind"`
}

// Empty returns the value a missing section starts from.
func (s Section) Empty() document.Value {
	if s.Kind == KindList {
		return document.Array()
	}
	return document.Object()
}

// Accepts reports whether v has the section's shape.
func (s Section) Accepts(v document.Value) bool {
	if s.Kind == KindList {
		return v.Kind() == document.KindArray
	}
	return v.Kind() == document.KindObject
}

// Schema is the ordered form layout.
type Schema struct {
	Sections []Section `yaml:"sections"`
	Metadata []string  `yaml:"metadata"`
}

// Section looks up a section by name.
func (s *Schema) Section(name string) (Section, bool) {
	for _, sec := range s.Sections {
		if sec.Name == name {
			return sec, true
		}
	}
	return Section{}, false
}

// Names lists the section names in form order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.Sections))
	for i, sec := range s.Sections {
		out[i] = sec.Name
	}
	return out
}

func (s *Schema) validate() error {
	if len(s.Sections) == 0 {
		return errors.New("formbind: schema has no sections")
	}
	seen := make(map[string]struct{}, len(s.Sections))
	for i, sec := range s.Sections {
		name := strings.TrimSpace(sec.Name)
		if name == "" {
			return fmt.Errorf("formbind: section %d has no name", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("formbind: duplicate section %q", name)
		}
		seen[name] = struct{}{}
		switch sec.Kind {
		case KindObject, KindList:
		default:
			return fmt.Errorf("formbind: section %q has unknown kind %q", name, sec.Kind)
		}
	}
	return nil
}

// ParseSchema decodes a YAML form layout.
func ParseSchema(data []byte) (*Schema, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("formbind: schema payload is empty")
	}
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("formbind: decode schema: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

var (
	defaultOnce   sync.Once
	defaultSchema *Schema
	defaultErr    error
)

// DefaultSchema returns the embedded layout.
func DefaultSchema() (*Schema, error) {
	defaultOnce.Do(func() {
		data, err := sectionsFS.ReadFile("sections.yaml")
		if err != nil {
			defaultErr = fmt.Errorf("formbind: read embedded schema: %w", err)
			return
		}
		defaultSchema, defaultErr = ParseSchema(data)
	})
	return defaultSchema, defaultErr
}

// MustDefaultSchema is DefaultSchema for callers that cannot continue without it.
func MustDefaultSchema() *Schema {
	s, err := DefaultSchema()
	if err != nil {
		panic(err)
	}
	return s
}

// Form is the in-progress payload of one activity.
type Form struct {
	ActivityID string
	Owner      string
	Payload    document.Value

	schema *Schema
}

// New seeds a fresh draft form with empty review metadata and every section.
func New(schema *Schema, activityID, owner string) *Form {
	payload := document.Object()
	for _, key := range schema.Metadata {
		payload.Set(key, document.String(""))
	}
	payload.Set("activity_id", document.String(activityID))
	payload.Set("owner", document.String(owner))
	payload.Set("status", document.String("draft"))

	f := &Form{ActivityID: activityID, Owner: owner, Payload: payload, schema: schema}
	f.EnsureStructure()
	return f
}

// Load wraps a stored payload. Missing sections are added.
func Load(schema *Schema, activityID, owner string, payload document.Value) *Form {
	p := payload.Clone()
	if p.Kind() != document.KindObject {
		p = document.Object()
	}
	f := &Form{ActivityID: activityID, Owner: owner, Payload: p, schema: schema}
	f.EnsureStructure()
	return f
}

// Clone returns a copy of f whose payload shares nothing with f.
func (f *Form) Clone() *Form {
	out := *f
	out.Payload = f.Payload.Clone()
	return &out
}

// EnsureStructure adds every missing section with its empty value.
func (f *Form) EnsureStructure() {
	for _, sec := range f.schema.Sections {
		if _, ok := f.Payload.Get(sec.Name); !ok {
			f.Payload.Set(sec.Name, sec.Empty())
		}
	}
}

// SetSection replaces one section.
func (f *Form) SetSection(name string, value document.Value) error {
	sec, ok := f.schema.Section(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSection, name)
	}
	if !sec.Accepts(value) {
		return fmt.Errorf("%w: %s wants %s, got %s", ErrSectionKind, name, sec.Kind, value.Kind())
	}
	f.Payload.Set(name, value.Clone())
	return nil
}

// Replace swaps the whole payload, keeping the section layout intact.
func (f *Form) Replace(payload document.Value) error {
	if payload.Kind() != document.KindObject {
		return fmt.Errorf("%w: payload must be an object, got %s", ErrSectionKind, payload.Kind())
	}
	if err := f.checkSections(payload); err != nil {
		return err
	}
	f.Payload = payload.Clone()
	f.EnsureStructure()
	return nil
}

// Merge copies the top-level members of payload into the form, checking
// section shapes first.
func (f *Form) Merge(payload document.Value) error {
	if payload.Kind() != document.KindObject {
		return fmt.Errorf("%w: payload must be an object, got %s", ErrSectionKind, payload.Kind())
	}
	if err := f.checkSections(payload); err != nil {
		return err
	}
	f.Payload.Merge(payload)
	return nil
}

func (f *Form) checkSections(payload document.Value) error {
	for _, m := range payload.Members() {
		if sec, ok := f.schema.Section(m.Key); ok && !sec.Accepts(m.Value) {
			return fmt.Errorf("%w: %s wants %s, got %s", ErrSectionKind, m.Key, sec.Kind, m.Value.Kind())
		}
	}
	return nil
}

// Title returns halaman_awal.judul, then a top-level judul, then a placeholder.
func (f *Form) Title() string {
	return Title(f.Payload)
}

// Title reads the display title of any payload.
func Title(payload document.Value) string {
	if v, ok := payload.Lookup("halaman_awal", "judul"); ok {
		if t := strings.TrimSpace(v.Text()); t != "" {
			return t
		}
	}
	if v, ok := payload.Get("judul"); ok {
		if t := strings.TrimSpace(v.Text()); t != "" {
			return t
		}
	}
	return UntitledActivity
}
