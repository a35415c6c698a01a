// Package patterns implements the durable pattern-learning store.
//
// The store is an append-only JSONL log: every write is a single atomic
// append of one record line, and corrections are appended as new records
// rather than rewriting old ones. Readers fold the log, treating the most
// recently appended entry per (signature, recommendation_text) pair as
// authoritative. A crash between an append and anything derived from it
// loses at most the in-flight write and never corrupts prior state.
package patterns

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sleuthdev/sleuth/internal/lexical"
	"github.com/sleuthdev/sleuth/internal/types"
)

const (
	// DefaultPrior is the confidence assigned to a freshly recorded
	// pattern whose outcome is still pending
	DefaultPrior = 0.5

	// LearningRate controls how fast outcomes move confidence.
	// confirmed: c' = c + (1-c)*rate; rejected: c' = c*(1-rate).
	// Confirmation never decreases confidence, rejection never
	// increases it.
	LearningRate = 0.2

	// ConfidenceFloor excludes patterns from matching once their
	// confidence has been rejected down far enough
	ConfidenceFloor = 0.3
)

// StoreFailure wraps I/O or lock errors on the pattern log
type StoreFailure struct {
	Op     string
	Detail string
	Err    error
}

func (e *StoreFailure) Error() string {
	return fmt.Sprintf("pattern store %s failed: %s", e.Op, e.Detail)
}

func (e *StoreFailure) Unwrap() error {
	return e.Err
}

// ErrRecordNotFound is wrapped into the StoreFailure when an outcome
// update names an unknown record
var ErrRecordNotFound = fmt.Errorf("pattern record not found")

// Store is a single-writer pattern log. Writes are serialized with an
// in-process mutex plus a flock on the backing file, because externally
// triggered concurrent investigations are a realistic deployment mode.
// Reads never write and never take the exclusive lock.
type Store struct {
	path string
	mu   sync.Mutex
}

// Open prepares a store over the given JSONL file, creating the parent
// directory if needed. The file itself is created lazily on first append.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, &StoreFailure{Op: "open", Detail: "store path is required"}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &StoreFailure{Op: "open", Detail: fmt.Sprintf("failed to create %s: %v", dir, err), Err: err}
		}
	}
	return &Store{path: path}, nil
}

// Path returns the backing log file path
func (s *Store) Path() string {
	return s.path
}

// Record appends a new pending pattern and returns it
func (s *Store) Record(signature, recommendationText string) (*types.PatternRecord, error) {
	signature = strings.TrimSpace(signature)
	recommendationText = strings.TrimSpace(recommendationText)
	if signature == "" || recommendationText == "" {
		return nil, &StoreFailure{Op: "record", Detail: "signature and recommendation text are required"}
	}

	now := time.Now().UTC()
	rec := types.PatternRecord{
		RecordID:           uuid.NewString(),
		Signature:          signature,
		RecommendationText: recommendationText,
		Outcome:            types.OutcomePending,
		Confidence:         DefaultPrior,
		CreatedAt:          now,
		UpdatedAt:          now,
		ObservationCount:   1,
	}
	if err := s.append(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateOutcome appends a successor record for the pattern identified by
// recordID, with the outcome set and confidence adjusted by the learning
// rate. The prior record is left untouched; matching and listing fold the
// log so the successor wins. Returns the appended record.
//
// The read-modify-append runs as one critical section under the advisory
// lock: two processes updating the same lineage must each observe the
// other's step, never fold the same base confidence twice.
func (s *Store) UpdateOutcome(recordID string, outcome types.Outcome) (*types.PatternRecord, error) {
	if outcome != types.OutcomeConfirmed && outcome != types.OutcomeRejected {
		return nil, &StoreFailure{Op: "update-outcome", Detail: fmt.Sprintf("outcome must be confirmed or rejected (got %q)", outcome)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.openLocked("update-outcome")
	if err != nil {
		return nil, err
	}
	defer s.unlockClose(f)

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, &StoreFailure{Op: "update-outcome", Detail: fmt.Sprintf("failed to read log: %v", err), Err: err}
	}

	var current *types.PatternRecord
	for _, rec := range foldRaw(raw, s.path) {
		if rec.RecordID == recordID {
			r := rec
			current = &r
			break
		}
	}
	if current == nil {
		return nil, &StoreFailure{Op: "update-outcome", Detail: fmt.Sprintf("record %s not found", recordID), Err: ErrRecordNotFound}
	}

	confidence := current.Confidence
	switch outcome {
	case types.OutcomeConfirmed:
		confidence = confidence + (1-confidence)*LearningRate
	case types.OutcomeRejected:
		confidence = confidence * (1 - LearningRate)
	}
	confidence = clamp01(confidence)

	successor := types.PatternRecord{
		RecordID:           current.RecordID,
		Signature:          current.Signature,
		RecommendationText: current.RecommendationText,
		Outcome:            outcome,
		Confidence:         confidence,
		CreatedAt:          current.CreatedAt,
		UpdatedAt:          time.Now().UTC(),
		ObservationCount:   current.ObservationCount + 1,
	}
	if err := s.writeRecord(f, &successor, "update-outcome"); err != nil {
		return nil, err
	}
	return &successor, nil
}

// Match returns up to topK folded patterns similar to the issue
// signature, ranked by similarity, then confidence, then recency.
// Patterns below the confidence floor are never returned. Matching is a
// pure read: it does not mutate the store.
func (s *Store) Match(issueSignature string, topK int) ([]types.PatternMatch, error) {
	if topK <= 0 {
		topK = 5
	}

	records, err := s.fold()
	if err != nil {
		return nil, err
	}

	issueTokens := lexical.TokenSet(issueSignature)

	var matches []types.PatternMatch
	for _, rec := range records {
		if rec.Confidence < ConfidenceFloor {
			continue
		}
		score := lexical.Jaccard(issueTokens, lexical.TokenSet(rec.Signature))
		if score <= 0 {
			continue
		}
		matches = append(matches, types.PatternMatch{Record: rec, SimilarityScore: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].SimilarityScore != matches[j].SimilarityScore {
			return matches[i].SimilarityScore > matches[j].SimilarityScore
		}
		if matches[i].Record.Confidence != matches[j].Record.Confidence {
			return matches[i].Record.Confidence > matches[j].Record.Confidence
		}
		return matches[i].Record.UpdatedAt.After(matches[j].Record.UpdatedAt)
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// List returns all folded records, most recently updated first
func (s *Store) List() ([]types.PatternRecord, error) {
	records, err := s.fold()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
	return records, nil
}

// append writes one record as a single JSONL line under the advisory lock
func (s *Store) append(rec *types.PatternRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.openLocked("append")
	if err != nil {
		return err
	}
	defer s.unlockClose(f)

	return s.writeRecord(f, rec, "append")
}

// openLocked opens the log and takes the exclusive advisory lock. The
// flock serializes writers across concurrently running investigations in
// other processes; the caller must release it with unlockClose.
func (s *Store) openLocked(op string) (*os.File, error) {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, &StoreFailure{Op: op, Detail: fmt.Sprintf("failed to open log: %v", err), Err: err}
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, &StoreFailure{Op: op, Detail: fmt.Sprintf("failed to lock log: %v", err), Err: err}
	}
	return f, nil
}

func (s *Store) unlockClose(f *os.File) {
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	_ = f.Close()
}

// writeRecord validates and appends one record to the locked log file
func (s *Store) writeRecord(f *os.File, rec *types.PatternRecord, op string) error {
	if err := rec.Validate(); err != nil {
		return &StoreFailure{Op: op, Detail: err.Error(), Err: err}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return &StoreFailure{Op: op, Detail: fmt.Sprintf("failed to encode record: %v", err), Err: err}
	}
	data = append(data, '\n')

	if _, err := f.Write(data); err != nil {
		return &StoreFailure{Op: op, Detail: fmt.Sprintf("failed to append record: %v", err), Err: err}
	}
	if err := f.Sync(); err != nil {
		return &StoreFailure{Op: op, Detail: fmt.Sprintf("failed to sync log: %v", err), Err: err}
	}
	return nil
}

// fold reads the log and keeps the most recently appended entry per
// (signature, recommendation_text) pair, preserving first-seen order.
func (s *Store) fold() ([]types.PatternRecord, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &StoreFailure{Op: "read", Detail: fmt.Sprintf("failed to read log: %v", err), Err: err}
	}
	return foldRaw(raw, s.path), nil
}

// foldRaw folds raw log bytes. A trailing line without a newline
// terminator is an in-flight append from another process and is treated
// as absent.
func foldRaw(raw []byte, path string) []types.PatternRecord {
	lines := strings.Split(string(raw), "\n")
	// Without a trailing newline the final chunk is an unterminated,
	// possibly mid-write record; with one, the final chunk is empty.
	lines = lines[:len(lines)-1]

	index := make(map[string]int)
	var folded []types.PatternRecord
	for lineNo, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var rec types.PatternRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			slog.Warn("skipping malformed pattern log line", "path", path, "line", lineNo+1, "error", err)
			continue
		}
		key := rec.Signature + "\x00" + rec.RecommendationText
		if i, ok := index[key]; ok {
			folded[i] = rec
		} else {
			index[key] = len(folded)
			folded = append(folded, rec)
		}
	}
	return folded
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
