package execution

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"forex-agent/internal/trading"
)

// Store persists open positions as a JSON array, fully rewritten on every
// mutation. Dashboards and gating collaborators read the same file.
type Store struct {
	path string
}

// NewStore uses path for the backing file; the file is created lazily on the
// first write.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns all open positions. A missing file is an empty book.
func (s *Store) Load() ([]trading.Position, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("execution: read positions: %w", err)
	}
	var positions []trading.Position
	if err := json.Unmarshal(data, &positions); err != nil {
		return nil, fmt.Errorf("execution: decode positions: %w", err)
	}
	return positions, nil
}

// Add appends a position and rewrites the file.
func (s *Store) Add(pos trading.Position) error {
	positions, err := s.Load()
	if err != nil {
		return err
	}
	return s.save(append(positions, pos))
}

// UpdateStop sets a new stop-loss on the identified position.
func (s *Store) UpdateStop(id string, newStop float64) error {
	positions, err := s.Load()
	if err != nil {
		return err
	}
	for i := range positions {
		if positions[i].ID == id {
			positions[i].StopLoss = newStop
			return s.save(positions)
		}
	}
	return fmt.Errorf("execution: position %s not found", id)
}

// Remove deletes the identified position and returns it.
func (s *Store) Remove(id string) (*trading.Position, error) {
	positions, err := s.Load()
	if err != nil {
		return nil, err
	}
	for i := range positions {
		if positions[i].ID == id {
			removed := positions[i]
			positions = append(positions[:i], positions[i+1:]...)
			return &removed, s.save(positions)
		}
	}
	return nil, fmt.Errorf("execution: position %s not found", id)
}

func (s *Store) save(positions []trading.Position) error {
	if positions == nil {
		positions = []trading.Position{}
	}
	data, err := json.MarshalIndent(positions, "", "  ")
	if err != nil {
		return fmt.Errorf("execution: encode positions: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("execution: write positions: %w", err)
	}
	return nil
}
