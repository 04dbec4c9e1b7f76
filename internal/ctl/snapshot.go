package ctl

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okian/lastcall/internal/domain/model"
)

// Snapshot is an offline market dump scored by the score command.
type Snapshot struct {
	MarketOpenAt string          `json:"market_open_at" yaml:"market_open_at"`
	Entries      []SnapshotEntry `json:"entries" yaml:"entries"`
}

// SnapshotEntry is one prediction of a Snapshot. Dates are YYYY-MM-DD and
// timestamps RFC 3339; actual_date stays empty for unresolved entries.
type SnapshotEntry struct {
	ID            string  `json:"id" yaml:"id"`
	ParticipantID string  `json:"participant_id" yaml:"participant_id"`
	Submarket     string  `json:"submarket,omitempty" yaml:"submarket,omitempty"`
	PredictedDate string  `json:"predicted_date" yaml:"predicted_date"`
	ActualDate    string  `json:"actual_date,omitempty" yaml:"actual_date,omitempty"`
	Stake         float64 `json:"stake" yaml:"stake"`
	SubmittedAt   string  `json:"submitted_at,omitempty" yaml:"submitted_at,omitempty"`
}

// LoadSnapshot reads a snapshot from path. Files ending in .yaml or .yml
// are YAML, anything else JSON.
func LoadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	return ParseSnapshot(data, filepath.Ext(path))
}

// ParseSnapshot decodes data using the format implied by ext.
func ParseSnapshot(data []byte, ext string) (Snapshot, error) {
	var snap Snapshot
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &snap); err != nil {
			return Snapshot{}, fmt.Errorf("%w: %w", ErrBadSnapshot, err)
		}
	default:
		if err := json.Unmarshal(data, &snap); err != nil {
			return Snapshot{}, fmt.Errorf("%w: %w", ErrBadSnapshot, err)
		}
	}
	return snap, nil
}

// ToEntries converts the snapshot to engine entries and the market open time.
func (s Snapshot) ToEntries() ([]model.Entry, time.Time, error) {
	openAt, err := parseTime(s.MarketOpenAt)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: market_open_at: %w", ErrBadSnapshot, err)
	}

	entries := make([]model.Entry, len(s.Entries))
	for i, se := range s.Entries {
		id := se.ID
		if id == "" {
			id = fmt.Sprintf("entry-%d", i+1)
		}
		predicted, err := time.Parse(model.DateLayout, se.PredictedDate)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("%w: %s: predicted_date: %w", ErrBadSnapshot, id, err)
		}
		e := model.Entry{
			ID:            id,
			ParticipantID: se.ParticipantID,
			SubmarketKey:  se.Submarket,
			Predicted:     predicted,
			Stake:         se.Stake,
			MarketOpenAt:  openAt,
		}
		if se.ActualDate != "" {
			actual, err := time.Parse(model.DateLayout, se.ActualDate)
			if err != nil {
				return nil, time.Time{}, fmt.Errorf("%w: %s: actual_date: %w", ErrBadSnapshot, id, err)
			}
			e.Actual = &actual
		}
		if e.SubmittedAt, err = parseTime(se.SubmittedAt); err != nil {
			return nil, time.Time{}, fmt.Errorf("%w: %s: submitted_at: %w", ErrBadSnapshot, id, err)
		}
		entries[i] = e
	}
	return entries, openAt, nil
}

// parseTime accepts RFC 3339 or a bare date. Empty yields the zero time.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(model.DateLayout, s)
}
