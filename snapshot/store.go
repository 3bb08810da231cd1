// Copyright 2025 Marketlens Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package snapshot

import (
	"sync"
	"time"

	"github.com/marketlens/marketlens/core"
)

// Store holds the authoritative in-memory snapshot of events and quotes.
// Snapshot replacement is atomic: readers either see the previous event list
// in full or the new one, never a mix. All reads return value copies.
type Store struct {
	mu sync.RWMutex

	events          []core.Event
	quotes          map[string]core.QuoteSnapshot
	updatedAt       time.Time
	quotesUpdatedAt time.Time
	lastReport      *core.RefreshReport
	lastError       string
}

// NewStore creates an empty snapshot store.
func NewStore() *Store {
	return &Store{
		quotes: make(map[string]core.QuoteSnapshot),
	}
}

// ReplaceEvents atomically publishes a new event snapshot, discarding the
// previous one wholesale.
func (s *Store) ReplaceEvents(events []core.Event) {
	copied := make([]core.Event, len(events))
	for i, event := range events {
		copied[i] = event.Clone()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = copied
	s.updatedAt = time.Now().UTC()
}

// Events returns a deep copy of the current snapshot.
func (s *Store) Events() []core.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Event, len(s.events))
	for i, event := range s.events {
		out[i] = event.Clone()
	}
	return out
}

// EventCount returns the number of events in the current snapshot.
func (s *Store) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// UpdatedAt returns when the event snapshot was last replaced; zero before
// the first refresh.
func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// QuotesUpdatedAt returns when the quote map was last replaced; zero before
// the first quote fetch.
func (s *Store) QuotesUpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quotesUpdatedAt
}

// ReplaceQuotes atomically publishes a new quote map.
func (s *Store) ReplaceQuotes(quotes map[string]core.QuoteSnapshot) {
	copied := make(map[string]core.QuoteSnapshot, len(quotes))
	for id, quote := range quotes {
		copied[id] = quote
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes = copied
	s.quotesUpdatedAt = time.Now().UTC()
}

// Quotes returns a copy of the current quote map.
func (s *Store) Quotes() map[string]core.QuoteSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]core.QuoteSnapshot, len(s.quotes))
	for id, quote := range s.quotes {
		out[id] = quote
	}
	return out
}

// SetRefreshReport records the report of the latest completed refresh and
// clears any prior non-fatal refresh error.
func (s *Store) SetRefreshReport(report core.RefreshReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastReport = &report
	s.lastError = ""
}

// LastRefreshReport returns a copy of the most recent refresh report, or nil
// before the first refresh.
func (s *Store) LastRefreshReport() *core.RefreshReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastReport == nil {
		return nil
	}
	report := *s.lastReport
	report.SourceErrors = append([]string(nil), s.lastReport.SourceErrors...)
	return &report
}

// SetRefreshError records a non-fatal error from a secondary refresh step
// (quote fetch, vector indexing) without invalidating the snapshot.
func (s *Store) SetRefreshError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = message
}

// LastRefreshError returns the last recorded non-fatal refresh error, empty
// when the latest refresh fully succeeded.
func (s *Store) LastRefreshError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}
