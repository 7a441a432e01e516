package rollout

import (
	"fmt"
	"slices"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Store persists collected episodes in leveldb under "<run>-<index>" keys.
type Store struct {
	db *leveldb.DB
}

func OpenStore(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return NewStore(db), nil
}

func NewStore(db *leveldb.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func episodeKey(run string, index int) []byte {
	return fmt.Appendf([]byte{}, "%s-%08d", run, index)
}

func (s *Store) Put(e Episode) error {
	if b, err := e.MarshalBinary(); err != nil {
		return fmt.Errorf("error marshalling episode to json: %w", err)
	} else if err := s.db.Put(episodeKey(e.Run, e.Index), b, nil); err != nil {
		return fmt.Errorf("error storing episode in db: %w", err)
	}
	return nil
}

// Get loads a single episode. A missing episode reports leveldb.ErrNotFound.
func (s *Store) Get(run string, index int) (Episode, error) {
	var e Episode
	b, err := s.db.Get(episodeKey(run, index), nil)
	if err != nil {
		return e, err
	}
	if err := e.UnmarshalBinary(b); err != nil {
		return e, fmt.Errorf("error unmarshalling episode: %w", err)
	}
	return e, nil
}

// Episodes returns every stored episode of run ordered by index.
func (s *Store) Episodes(run string) ([]Episode, error) {
	out := []Episode{}

	iter := s.db.NewIterator(util.BytesPrefix([]byte(run+"-")), nil)
	defer iter.Release()
	for iter.Next() {
		var e Episode
		if err := e.UnmarshalBinary(iter.Value()); err != nil {
			return nil, fmt.Errorf("error unmarshalling episode %s: %w", iter.Key(), err)
		}
		if e.Run != run {
			continue
		}
		out = append(out, e)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	slices.SortFunc(out, func(a, b Episode) int {
		return a.Index - b.Index
	})

	return out, nil
}

// Next returns the index the next episode of run should be stored under.
func (s *Store) Next(run string) (int, error) {
	episodes, err := s.Episodes(run)
	if err != nil {
		return 0, err
	}
	if len(episodes) == 0 {
		return 0, nil
	}
	return episodes[len(episodes)-1].Index + 1, nil
}

// Resume returns the index collection of run continues from and the last
// episode stored before it, or nil for a fresh run.
func (s *Store) Resume(run string) (int, *Episode, error) {
	next, err := s.Next(run)
	if err != nil || next == 0 {
		return next, nil, err
	}
	e, err := s.Get(run, next-1)
	if err != nil {
		return 0, nil, fmt.Errorf("error loading episode %d of %s: %w", next-1, run, err)
	}
	return next, &e, nil
}
