package records

import (
	"btocore/internal/blob"
	"btocore/internal/infra/persistence/memory"
	"btocore/pkg/domain"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	backendName = "records"
	// currentKey names the pointer object holding the live generation.
	currentKey    = "CURRENT"
	generationFmt = "gen-%06d/"
	contentType   = "text/csv"
)

// Store keeps state in memory and writes CSV record files to a blob store.
//
// Layout under prefix:
//
//	CURRENT                 -> "gen-000002/"
//	gen-000002/users.csv    (live)
//	users.csv ...           (hand-authored seed, read only when CURRENT is absent)
//
// Flush writes a complete new generation and then replaces CURRENT, so a
// failed flush never changes what the next load sees.
type Store struct {
	*memory.Store
	blobs      blob.Store
	prefix     string
	mu         sync.Mutex
	generation int
}

// NewStore loads the live generation (or the seed files) under prefix.
func NewStore(ctx context.Context, blobs blob.Store, prefix string, engine *domain.RulesEngine) (*Store, error) {
	if blobs == nil {
		return nil, persistErr("open", errors.New("blob store required"))
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	s := &Store{Store: memory.NewStore(engine), blobs: blobs, prefix: prefix}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Prefix returns the key prefix the store reads and writes under.
func (s *Store) Prefix() string { return s.prefix }

// Generation returns the live generation number; 0 means seed files.
func (s *Store) Generation() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Store) load(ctx context.Context) error {
	dir := s.prefix
	pointer, found, err := s.read(ctx, s.prefix+currentKey)
	if err != nil {
		return persistErr("load", err)
	}
	if found {
		gen, err := parseGeneration(string(pointer))
		if err != nil {
			return persistErr("load", err)
		}
		s.generation = gen
		dir = s.prefix + fmt.Sprintf(generationFmt, gen)
	}
	files := make(map[string][]byte, len(Files))
	for _, file := range Files {
		data, ok, err := s.read(ctx, dir+file)
		if err != nil {
			return persistErr("load", err)
		}
		if found && !ok {
			return persistErr("load", fmt.Errorf("generation %d is missing %s", s.generation, file))
		}
		if ok {
			files[file] = data
		}
	}
	snapshot, err := Decode(files)
	if err != nil {
		return persistErr("load", err)
	}
	s.ImportState(snapshot)
	return nil
}

func (s *Store) read(ctx context.Context, key string) ([]byte, bool, error) {
	_, rc, err := s.blobs.Get(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return data, true, nil
}

func parseGeneration(pointer string) (int, error) {
	var gen int
	if _, err := fmt.Sscanf(strings.TrimSpace(pointer), "gen-%d/", &gen); err != nil || gen <= 0 {
		return 0, fmt.Errorf("malformed %s pointer %q", currentKey, pointer)
	}
	return gen, nil
}

// Flush encodes every file, writes them as a new generation and then swaps
// the CURRENT pointer. The previous generation is removed best-effort.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	files, err := Encode(s.ExportState())
	if err != nil {
		return persistErr("flush", err)
	}
	next := s.generation + 1
	dir := s.prefix + fmt.Sprintf(generationFmt, next)
	for _, file := range Files {
		if _, err := s.blobs.Put(ctx, dir+file, bytes.NewReader(files[file]), blob.PutOptions{ContentType: contentType}); err != nil {
			s.removeGeneration(ctx, next)
			return persistErr("flush", fmt.Errorf("stage %s: %w", file, err))
		}
	}
	pointer := fmt.Sprintf(generationFmt, next)
	if _, err := s.blobs.Put(ctx, s.prefix+currentKey, strings.NewReader(pointer), blob.PutOptions{ContentType: "text/plain"}); err != nil {
		s.removeGeneration(ctx, next)
		return persistErr("flush", fmt.Errorf("promote generation %d: %w", next, err))
	}
	previous := s.generation
	s.generation = next
	if previous > 0 {
		s.removeGeneration(ctx, previous)
	}
	return nil
}

func (s *Store) removeGeneration(ctx context.Context, gen int) {
	dir := s.prefix + fmt.Sprintf(generationFmt, gen)
	for _, file := range Files {
		_, _ = s.blobs.Delete(ctx, dir+file)
	}
}

// Close is a no-op; the blob store owns no handles that need releasing.
func (s *Store) Close() error { return nil }

// GenerationKey returns the object key of file in the live generation, or the
// seed key when nothing has been flushed yet.
func (s *Store) GenerationKey(file string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == 0 {
		return s.prefix + file
	}
	return s.prefix + fmt.Sprintf(generationFmt, s.generation) + file
}

func persistErr(op string, err error) error {
	return &domain.PersistenceError{Backend: backendName, Op: op, Err: err}
}
