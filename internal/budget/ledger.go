package budget

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/paperwall-labs/paperwall-node/internal/utils"
)

// Budget decline reasons. Declines are results, not errors: "declined" is an
// expected, common outcome.
const (
	ReasonNoBudget   = "no_budget"
	ReasonPerRequest = "per_request"
	ReasonMaxPrice   = "max_price"
	ReasonDaily      = "daily"
	ReasonTotal      = "total"
)

const (
	budgetFileName  = "budget.json"
	historyFileName = "history.ndjson"
)

// Config holds the spending limits, each a decimal USDC string. A nil field
// means "unlimited" on that axis. Persisted as a merge-on-write document.
type Config struct {
	PerRequestMax *string `json:"perRequestMax,omitempty"`
	DailyMax      *string `json:"dailyMax,omitempty"`
	TotalMax      *string `json:"totalMax,omitempty"`
}

// Decision is the outcome of a budget check. Limit and Spent are smallest-unit
// integer strings populated on declines where they apply.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Limit   string `json:"limit,omitempty"`
	Spent   string `json:"spent,omitempty"`
}

// Ledger evaluates prospective payments against the configured limits and the
// payment history. History is read fresh on every check.
type Ledger struct {
	budgetPath string
	history    *History
	logger     *utils.LogsManager
	mu         sync.Mutex
}

func NewLedger(logger *utils.LogsManager) *Ledger {
	paths := utils.GetAppPaths("")
	return NewLedgerAt(
		filepath.Join(paths.DataDir, budgetFileName),
		filepath.Join(paths.DataDir, historyFileName),
		logger,
	)
}

// NewLedgerAt creates a ledger over explicit budget and history file paths.
func NewLedgerAt(budgetPath, historyPath string, logger *utils.LogsManager) *Ledger {
	return &Ledger{
		budgetPath: budgetPath,
		history:    NewHistoryAt(historyPath, logger),
		logger:     logger,
	}
}

// History exposes the ledger's payment log for recording settlements.
func (l *Ledger) History() *History {
	return l.history
}

// GetBudget loads the persisted limits, or nil when none are configured.
func (l *Ledger) GetBudget() (*Config, error) {
	data, err := os.ReadFile(l.budgetPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read budget file: %v", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse budget file: %v", err)
	}
	return &cfg, nil
}

// SetBudget merges the given partial limits into the persisted document:
// non-nil fields overwrite, nil fields keep their existing value. Each new
// value must be a valid decimal USDC amount.
func (l *Ledger) SetBudget(partial *Config) (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.GetBudget()
	if err != nil {
		return nil, err
	}
	if existing == nil {
		existing = &Config{}
	}

	for name, pair := range map[string]struct {
		dst **string
		src *string
	}{
		"perRequestMax": {&existing.PerRequestMax, partial.PerRequestMax},
		"dailyMax":      {&existing.DailyMax, partial.DailyMax},
		"totalMax":      {&existing.TotalMax, partial.TotalMax},
	} {
		if pair.src == nil {
			continue
		}
		if _, err := UsdcToSmallest(*pair.src); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", name, err)
		}
		*pair.dst = pair.src
	}

	if dir := filepath.Dir(l.budgetPath); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create budget directory: %v", err)
		}
	}
	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal budget: %v", err)
	}
	if err := os.WriteFile(l.budgetPath, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write budget file: %v", err)
	}

	if l.logger != nil {
		l.logger.Info("Budget updated", "budget")
	}
	return existing, nil
}

// CheckBudget evaluates a prospective payment. amount is a smallest-unit
// integer string; maxPrice is an optional decimal USDC cap supplied by the
// caller ("" means no cap). The first failing check wins:
//
//  1. no budget configured at all
//  2. perRequestMax
//  3. maxPrice (an independent override, checked even when a budget exists)
//  4. dailyMax against spend for the current UTC day
//  5. totalMax against lifetime spend
//
// Equality with a limit is allowed on every axis.
func (l *Ledger) CheckBudget(amount, maxPrice string) (*Decision, error) {
	value, err := ParseSmallest(amount)
	if err != nil {
		return nil, err
	}

	var maxPriceValue *big.Int
	if maxPrice != "" {
		smallest, err := UsdcToSmallest(maxPrice)
		if err != nil {
			return nil, fmt.Errorf("invalid maxPrice: %w", err)
		}
		maxPriceValue, _ = ParseSmallest(smallest)
	}

	cfg, err := l.GetBudget()
	if err != nil {
		return nil, err
	}

	if cfg == nil {
		if maxPriceValue != nil && value.Cmp(maxPriceValue) <= 0 {
			return &Decision{Allowed: true}, nil
		}
		decision := &Decision{Reason: ReasonNoBudget}
		if maxPriceValue != nil {
			decision.Limit = maxPriceValue.String()
		}
		return decision, nil
	}

	if limit, err := limitValue(cfg.PerRequestMax); err != nil {
		return nil, err
	} else if limit != nil && value.Cmp(limit) > 0 {
		return &Decision{Reason: ReasonPerRequest, Limit: limit.String()}, nil
	}

	if maxPriceValue != nil && value.Cmp(maxPriceValue) > 0 {
		return &Decision{Reason: ReasonMaxPrice, Limit: maxPriceValue.String()}, nil
	}

	if limit, err := limitValue(cfg.DailyMax); err != nil {
		return nil, err
	} else if limit != nil {
		spent, err := l.history.SpentOn(time.Now().UTC())
		if err != nil {
			return nil, err
		}
		if new(big.Int).Add(spent, value).Cmp(limit) > 0 {
			return &Decision{Reason: ReasonDaily, Limit: limit.String(), Spent: spent.String()}, nil
		}
	}

	if limit, err := limitValue(cfg.TotalMax); err != nil {
		return nil, err
	} else if limit != nil {
		spent, err := l.history.SpentTotal()
		if err != nil {
			return nil, err
		}
		if new(big.Int).Add(spent, value).Cmp(limit) > 0 {
			return &Decision{Reason: ReasonTotal, Limit: limit.String(), Spent: spent.String()}, nil
		}
	}

	return &Decision{Allowed: true}, nil
}

func limitValue(limit *string) (*big.Int, error) {
	if limit == nil {
		return nil, nil
	}
	smallest, err := UsdcToSmallest(*limit)
	if err != nil {
		return nil, fmt.Errorf("invalid budget limit: %w", err)
	}
	return ParseSmallest(smallest)
}
