package budget

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/paperwall-labs/paperwall-node/internal/utils"
)

// HistoryEntry is one settled payment, one line in the append-only history
// file. Amount is an integer smallest-unit string.
type HistoryEntry struct {
	ID      string `json:"id"`
	TS      string `json:"ts"`
	URL     string `json:"url"`
	Amount  string `json:"amount"`
	Asset   string `json:"asset"`
	Network string `json:"network"`
	TxHash  string `json:"txHash"`
	Mode    string `json:"mode"`
}

// History is the append-only NDJSON payment log. Entries are never mutated or
// deleted; daily and lifetime totals are computed by streaming the file.
type History struct {
	path   string
	logger *utils.LogsManager
}

func NewHistoryAt(path string, logger *utils.LogsManager) *History {
	return &History{path: path, logger: logger}
}

// Append writes one entry as a single NDJSON line. ID and TS are filled in
// when empty; TS is always recorded in UTC.
func (h *History) Append(entry *HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.TS == "" {
		entry.TS = time.Now().UTC().Format(time.RFC3339)
	}
	if _, err := ParseSmallest(entry.Amount); err != nil {
		return fmt.Errorf("refusing to record payment: %w", err)
	}

	if dir := filepath.Dir(h.path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create history directory: %v", err)
		}
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %v", err)
	}

	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open history file: %v", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append history entry: %v", err)
	}
	return nil
}

// SpentOn sums the amounts of all entries recorded on the given UTC calendar
// day.
func (h *History) SpentOn(day time.Time) (*big.Int, error) {
	date := day.UTC().Format("2006-01-02")
	return h.sum(func(e *HistoryEntry) bool {
		ts, err := time.Parse(time.RFC3339, e.TS)
		if err != nil {
			return false
		}
		return ts.UTC().Format("2006-01-02") == date
	})
}

// SpentTotal sums the amounts of all entries ever recorded.
func (h *History) SpentTotal() (*big.Int, error) {
	return h.sum(func(*HistoryEntry) bool { return true })
}

// Entries returns all recorded entries, oldest first.
func (h *History) Entries() ([]*HistoryEntry, error) {
	var entries []*HistoryEntry
	err := h.scan(func(e *HistoryEntry) {
		entries = append(entries, e)
	})
	return entries, err
}

func (h *History) sum(match func(*HistoryEntry) bool) (*big.Int, error) {
	total := new(big.Int)
	err := h.scan(func(e *HistoryEntry) {
		if !match(e) {
			return
		}
		amount, err := ParseSmallest(e.Amount)
		if err != nil {
			h.warn(fmt.Sprintf("Skipping history entry %s with bad amount: %v", e.ID, err))
			return
		}
		total.Add(total, amount)
	})
	if err != nil {
		return nil, err
	}
	return total, nil
}

// scan streams the history file line by line so large logs never load into
// memory at once. Malformed lines are skipped with a warning.
func (h *History) scan(visit func(*HistoryEntry)) error {
	f, err := os.Open(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open history file: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry HistoryEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			h.warn(fmt.Sprintf("Skipping malformed history line: %v", err))
			continue
		}
		visit(&entry)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read history file: %v", err)
	}
	return nil
}

func (h *History) warn(message string) {
	if h.logger != nil {
		h.logger.Warn(message, "budget")
	}
}
