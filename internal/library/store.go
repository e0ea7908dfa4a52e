// Package library persists the user's saved filter groups, saved searches
// and query history in a single JSON file.
package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coffersTech/nanodiscover/internal/model"
)

// HistoryLimit caps the number of history entries kept.
const HistoryLimit = 20

var ErrNameRequired = errors.New("name is required")

// RawTimeRange is the time range as the user typed it, e.g. "now-1h".
type RawTimeRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// StoredTimeRange is a resolved time range plus its raw form.
type StoredTimeRange struct {
	From string       `json:"from"`
	To   string       `json:"to"`
	Raw  RawTimeRange `json:"raw"`
}

// Filter is a clause without its id.
type Filter struct {
	Field      string           `json:"field"`
	Comparator model.Comparator `json:"comparator"`
	Value      any              `json:"value,omitempty"`
}

// StripIDs converts clauses into id-less filters.
func StripIDs(clauses []model.Clause) []Filter {
	out := make([]Filter, len(clauses))
	for i, c := range clauses {
		out[i] = Filter{Field: c.Field, Comparator: c.Comparator, Value: c.Value}
	}
	return out
}

// Clauses gives filters fresh clause ids.
func Clauses(filters []Filter) []model.Clause {
	out := make([]model.Clause, len(filters))
	for i, f := range filters {
		out[i] = model.Clause{ID: model.NewClauseID("filter"), Field: f.Field, Comparator: f.Comparator, Value: f.Value}
	}
	return out
}

type FilterGroup struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Filters     []model.Clause `json:"filters"`
	CreatedAt   string         `json:"createdAt"`
}

type SavedSearch struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Query       string          `json:"query"`
	Limit       int             `json:"limit"`
	TimeRange   StoredTimeRange `json:"timeRange"`
	Filters     []Filter        `json:"filters"`
	Favorite    bool            `json:"favorite"`
	CreatedAt   string          `json:"createdAt"`
	UpdatedAt   string          `json:"updatedAt"`
}

type HistoryEntry struct {
	ID         string          `json:"id"`
	Query      string          `json:"query"`
	Limit      int             `json:"limit"`
	TimeRange  StoredTimeRange `json:"timeRange"`
	ExecutedAt string          `json:"executedAt"`
	Filters    []Filter        `json:"filters"`
}

// Data is the top-level container written to disk.
type Data struct {
	FilterGroups  []FilterGroup  `json:"filterGroups"`
	SavedSearches []SavedSearch  `json:"savedSearches"`
	History       []HistoryEntry `json:"history"`
}

// Store handles the persistence and in-memory management of Data.
// Every mutation is written through to disk.
type Store struct {
	filePath string // empty keeps everything in memory
	mu       sync.RWMutex
	data     *Data
	now      func() time.Time
}

// NewStore creates a store backed by filePath.
func NewStore(filePath string) *Store {
	return &Store{
		filePath: filePath,
		data:     emptyData(),
		now:      time.Now,
	}
}

func emptyData() *Data {
	return &Data{
		FilterGroups:  make([]FilterGroup, 0),
		SavedSearches: make([]SavedSearch, 0),
		History:       make([]HistoryEntry, 0),
	}
}

// Load reads the file. A missing or empty file leaves the store empty; a
// corrupt one also leaves it empty and reports the error.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = emptyData()
	if s.filePath == "" {
		return nil
	}
	raw, err := os.ReadFile(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	loaded := emptyData()
	if err := json.Unmarshal(raw, loaded); err != nil {
		return fmt.Errorf("decode library %s: %w", s.filePath, err)
	}
	if loaded.FilterGroups == nil {
		loaded.FilterGroups = make([]FilterGroup, 0)
	}
	if loaded.SavedSearches == nil {
		loaded.SavedSearches = make([]SavedSearch, 0)
	}
	if loaded.History == nil {
		loaded.History = make([]HistoryEntry, 0)
	}
	if len(loaded.History) > HistoryLimit {
		loaded.History = loaded.History[:HistoryLimit]
	}
	s.data = loaded
	return nil
}

// Persist writes the store to disk.
func (s *Store) Persist() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if s.filePath == "" {
		return nil
	}
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, b, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.filePath)
}

func (s *Store) stamp() string {
	return model.FormatMillis(s.now().UnixMilli())
}

// FilterGroups returns a copy of the saved filter groups.
func (s *Store) FilterGroups() []FilterGroup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]FilterGroup, len(s.data.FilterGroups))
	copy(out, s.data.FilterGroups)
	return out
}

// UpsertFilterGroup replaces the group with the same id or appends a new one.
func (s *Store) UpsertFilterGroup(g FilterGroup) (FilterGroup, error) {
	g.Name = strings.TrimSpace(g.Name)
	if g.Name == "" {
		return FilterGroup{}, ErrNameRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt == "" {
		g.CreatedAt = s.stamp()
	}
	if g.Filters == nil {
		g.Filters = []model.Clause{}
	}

	for i, existing := range s.data.FilterGroups {
		if existing.ID == g.ID {
			s.data.FilterGroups[i] = g
			return g, s.saveLocked()
		}
	}
	s.data.FilterGroups = append(s.data.FilterGroups, g)
	return g, s.saveLocked()
}

// DeleteFilterGroup removes a group by id.
func (s *Store) DeleteFilterGroup(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, g := range s.data.FilterGroups {
		if g.ID == id {
			s.data.FilterGroups = append(s.data.FilterGroups[:i], s.data.FilterGroups[i+1:]...)
			return s.saveLocked()
		}
	}
	return os.ErrNotExist
}

// SavedSearches returns saved searches, favorites first, then most
// recently updated first.
func (s *Store) SavedSearches() []SavedSearch {
	s.mu.RLock()
	out := make([]SavedSearch, len(s.data.SavedSearches))
	copy(out, s.data.SavedSearches)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Favorite != out[j].Favorite {
			return out[i].Favorite
		}
		return millis(out[i].UpdatedAt) > millis(out[j].UpdatedAt)
	})
	return out
}

// SaveSearch stores a search. A search whose name matches an existing one
// (case-insensitively) updates it in place, keeping its id, creation time
// and favorite flag; otherwise the search is added at the front.
func (s *Store) SaveSearch(in SavedSearch) (SavedSearch, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return SavedSearch{}, ErrNameRequired
	}
	if in.Filters == nil {
		in.Filters = []Filter{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.stamp()
	for i, existing := range s.data.SavedSearches {
		if strings.EqualFold(existing.Name, name) {
			existing.Name = name
			existing.Description = strings.TrimSpace(in.Description)
			existing.Query = in.Query
			existing.Limit = in.Limit
			existing.TimeRange = in.TimeRange
			existing.Filters = in.Filters
			existing.UpdatedAt = now
			s.data.SavedSearches[i] = existing
			return existing, s.saveLocked()
		}
	}

	entry := SavedSearch{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Query:       in.Query,
		Limit:       in.Limit,
		TimeRange:   in.TimeRange,
		Filters:     in.Filters,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.data.SavedSearches = append([]SavedSearch{entry}, s.data.SavedSearches...)
	return entry, s.saveLocked()
}

// DeleteSavedSearch removes a saved search by id.
func (s *Store) DeleteSavedSearch(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, ss := range s.data.SavedSearches {
		if ss.ID == id {
			s.data.SavedSearches = append(s.data.SavedSearches[:i], s.data.SavedSearches[i+1:]...)
			return s.saveLocked()
		}
	}
	return os.ErrNotExist
}

// ToggleFavorite flips the favorite flag of a saved search.
func (s *Store) ToggleFavorite(id string) (SavedSearch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.data.SavedSearches {
		ss := &s.data.SavedSearches[i]
		if ss.ID == id {
			ss.Favorite = !ss.Favorite
			ss.UpdatedAt = s.stamp()
			return *ss, s.saveLocked()
		}
	}
	return SavedSearch{}, os.ErrNotExist
}

// History returns history entries, most recent first.
func (s *Store) History() []HistoryEntry {
	s.mu.RLock()
	out := make([]HistoryEntry, len(s.data.History))
	copy(out, s.data.History)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return millis(out[i].ExecutedAt) > millis(out[j].ExecutedAt)
	})
	return out
}

// RecordHistory adds an entry at the front, dropping any earlier entry for
// the same query, limit, raw time range and filters, and keeps at most
// HistoryLimit entries.
func (s *Store) RecordHistory(e HistoryEntry) (HistoryEntry, error) {
	if e.Filters == nil {
		e.Filters = []Filter{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = uuid.NewString()
	e.ExecutedAt = s.stamp()

	next := make([]HistoryEntry, 0, len(s.data.History)+1)
	next = append(next, e)
	for _, existing := range s.data.History {
		if !sameHistoryEntry(existing, e) {
			next = append(next, existing)
		}
	}
	if len(next) > HistoryLimit {
		next = next[:HistoryLimit]
	}
	s.data.History = next
	return e, s.saveLocked()
}

// ClearHistory drops all history entries.
func (s *Store) ClearHistory() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.History = make([]HistoryEntry, 0)
	return s.saveLocked()
}

func sameHistoryEntry(a, b HistoryEntry) bool {
	if a.Query != b.Query || a.Limit != b.Limit ||
		a.TimeRange.Raw.From != b.TimeRange.Raw.From || a.TimeRange.Raw.To != b.TimeRange.Raw.To {
		return false
	}
	left, err1 := json.Marshal(a.Filters)
	right, err2 := json.Marshal(b.Filters)
	return err1 == nil && err2 == nil && string(left) == string(right)
}

func millis(ts string) int64 {
	t, ok := model.ParseTimestamp(ts)
	if !ok {
		return 0
	}
	return t.UnixMilli()
}
