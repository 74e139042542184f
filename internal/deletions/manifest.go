// Package deletions removes issues with an explicit disposition for their
// logged time, and keeps the deletions manifest.
//
// The manifest (deletions.jsonl) is an append-only log with one record per
// deleted issue: who deleted it, when, and what happened to its hours.
package deletions

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
)

// Record is a single deletion entry in the manifest.
type Record struct {
	IssueID    int64           `json:"id"`
	ProjectID  int64           `json:"project_id"`
	Subject    string          `json:"subject"`
	ParentID   *int64          `json:"parent_id,omitempty"`
	Timestamp  time.Time       `json:"ts"`
	Actor      string          `json:"by"`
	Todo       Todo            `json:"todo,omitempty"`
	ReassignTo int64           `json:"reassign_to,omitempty"`
	Hours      decimal.Decimal `json:"hours"`
	Reason     string          `json:"reason,omitempty"`
}

// LoadResult holds the outcome of reading the manifest.
type LoadResult struct {
	Records  map[int64]Record
	Skipped  int
	Warnings []string
}

// Load reads the manifest. Corrupt lines are skipped and reported in
// Warnings rather than failing the load. A missing file is empty.
func Load(path string) (*LoadResult, error) {
	result := &LoadResult{Records: make(map[int64]Record)}
	f, err := os.Open(path) // #nosec G304 - controlled path from caller
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, fmt.Errorf("failed to open deletions file: %w", err)
	}
	defer f.Close()

	lineNo := 0
	scanner := bufio.NewScanner(f)
	// Reasons may be long
	scanner.Buffer(make([]byte, 0, 1024), 1024*1024)

	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record Record
		if err := json.Unmarshal(line, &record); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("skipping corrupt line %d in deletions manifest: %v", lineNo, err))
			result.Skipped++
			continue
		}
		if record.IssueID <= 0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("skipping line %d in deletions manifest: missing id", lineNo))
			result.Skipped++
			continue
		}

		// Last write wins
		result.Records[record.IssueID] = record
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading deletions file: %w", err)
	}
	return result, nil
}

// Append adds records to the manifest, creating it if needed.
func Append(path string, records ...Record) error {
	for _, r := range records {
		if r.IssueID <= 0 {
			return errors.New("cannot append deletion record: id is required")
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) // #nosec G304 - controlled path
	if err != nil {
		return fmt.Errorf("failed to open deletions file for append: %w", err)
	}
	defer f.Close()

	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal deletion record: %w", err)
		}
		if _, err := f.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write deletion record: %w", err)
		}
	}
	return nil
}

// Write atomically replaces the manifest. Used to compact it.
func Write(path string, records []Record) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	defer func() {
		_ = tempFile.Close()
		_ = os.Remove(tempPath)
	}()

	enc := json.NewEncoder(tempFile)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to write deletion record: %w", err)
		}
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to replace deletions file: %w", err)
	}
	return nil
}

// DefaultPath returns the manifest path inside a .tracklog directory.
func DefaultPath(dir string) string {
	return filepath.Join(dir, "deletions.jsonl")
}
