// Package roster supplies character snapshots to the narrator.
package roster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/narrator-go/internal/narrative"
)

// Source returns the characters currently known to the story.
type Source interface {
	Snapshot(ctx context.Context) (people, followers []narrative.Character, err error)
}

type entry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Voice       string `yaml:"voice"`
}

type document struct {
	People    []entry `yaml:"people"`
	Followers []entry `yaml:"followers"`
}

// FileSource reads a YAML roster on every snapshot, so edits take effect on
// the next narration without a restart.
type FileSource struct {
	path string
}

// NewFileSource creates a source for the YAML file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Snapshot parses the roster file. Unknown keys and nameless entries are errors.
func (s *FileSource) Snapshot(ctx context.Context) ([]narrative.Character, []narrative.Character, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, nil, fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// Decode parses a roster document.
func Decode(r io.Reader) ([]narrative.Character, []narrative.Character, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("parse roster: %w", err)
	}

	people, err := characters("people", doc.People)
	if err != nil {
		return nil, nil, err
	}
	followers, err := characters("followers", doc.Followers)
	if err != nil {
		return nil, nil, err
	}
	return people, followers, nil
}

func characters(section string, entries []entry) ([]narrative.Character, error) {
	out := make([]narrative.Character, 0, len(entries))
	for i, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("parse roster: %s[%d] has no name", section, i)
		}
		out = append(out, narrative.Character{
			Name:        e.Name,
			Description: e.Description,
			Voice:       e.Voice,
		})
	}
	return out, nil
}

// StaticSource is an in-memory roster that callers can replace at any time.
type StaticSource struct {
	mu        sync.RWMutex
	people    []narrative.Character
	followers []narrative.Character
}

// NewStaticSource creates a source holding the given characters.
func NewStaticSource(people, followers []narrative.Character) *StaticSource {
	s := &StaticSource{}
	s.Set(people, followers)
	return s
}

// Set replaces the roster.
func (s *StaticSource) Set(people, followers []narrative.Character) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.people = append([]narrative.Character(nil), people...)
	s.followers = append([]narrative.Character(nil), followers...)
}

// Snapshot returns copies of the current roster.
func (s *StaticSource) Snapshot(context.Context) ([]narrative.Character, []narrative.Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]narrative.Character(nil), s.people...),
		append([]narrative.Character(nil), s.followers...), nil
}
