// Package dataset holds the tabular data scripts operate on.
package dataset

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("dataset not found")
	ErrEmpty    = errors.New("dataset has no columns")
)

// Column describes one column of a dataset.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Info is a snapshot of a dataset's shape.
type Info struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Rows      int       `json:"rows"`
	Columns   []Column  `json:"columns"`
	CreatedAt time.Time `json:"created_at"`
}

// Dataset is a shared, mutable dataframe. Scripts see it as a live frame and
// their edits replace the stored frame through SetFrame.
//
// Lock and Unlock serialise whole turns against the same dataset; they are
// separate from the lock guarding the frame itself.
type Dataset struct {
	ID        string
	Name      string
	CreatedAt time.Time

	turn sync.Mutex

	mu sync.RWMutex
	df dataframe.DataFrame
}

// New wraps df as a dataset with a fresh id.
func New(name string, df dataframe.DataFrame) *Dataset {
	return &Dataset{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
		df:        df,
	}
}

// LoadCSV reads a CSV document with a header row. Column types are
// detected from the values.
func LoadCSV(name string, r io.Reader) (*Dataset, error) {
	df := dataframe.ReadCSV(r)
	if df.Err != nil {
		return nil, fmt.Errorf("reading csv: %w", df.Err)
	}
	if df.Ncol() == 0 {
		return nil, ErrEmpty
	}
	return New(name, df), nil
}

// Frame returns the current frame.
func (d *Dataset) Frame() dataframe.DataFrame {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.df
}

// SetFrame replaces the stored frame.
func (d *Dataset) SetFrame(df dataframe.DataFrame) {
	d.mu.Lock()
	d.df = df
	d.mu.Unlock()
}

// Lock reserves the dataset for one turn.
func (d *Dataset) Lock() { d.turn.Lock() }

// Unlock releases a turn reservation.
func (d *Dataset) Unlock() { d.turn.Unlock() }

// Info returns the dataset's current shape.
func (d *Dataset) Info() Info {
	df := d.Frame()
	names := df.Names()
	types := df.Types()
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Type: string(types[i])}
	}
	return Info{
		ID:        d.ID,
		Name:      d.Name,
		Rows:      df.Nrow(),
		Columns:   cols,
		CreatedAt: d.CreatedAt,
	}
}

// Store is an in-memory registry of datasets keyed by id.
type Store struct {
	mu       sync.RWMutex
	datasets map[string]*Dataset
	max      int
}

// NewStore creates a store holding at most max datasets; max <= 0 means
// unbounded. When full, the oldest dataset is evicted.
func NewStore(max int) *Store {
	return &Store{datasets: make(map[string]*Dataset), max: max}
}

// Add registers d, evicting the oldest dataset if the store is full.
func (s *Store) Add(d *Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.max > 0 && len(s.datasets) >= s.max {
		var oldest *Dataset
		for _, ds := range s.datasets {
			if oldest == nil || ds.CreatedAt.Before(oldest.CreatedAt) {
				oldest = ds
			}
		}
		if oldest != nil {
			delete(s.datasets, oldest.ID)
		}
	}
	s.datasets[d.ID] = d
}

// Get returns the dataset with the given id.
func (s *Store) Get(id string) (*Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.datasets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return d, nil
}

// Delete removes a dataset. Deleting an unknown id is not an error.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.datasets, id)
	s.mu.Unlock()
}

// Len returns the number of stored datasets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.datasets)
}
