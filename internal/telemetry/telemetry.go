// Package telemetry records one append-only line per provider call and
// derives rolling per-(provider,model) success/cost/latency summaries from
// the tail of that log.
package telemetry

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/switchboard-cli/switchboard/internal/paths"
)

// Entry is one append-only telemetry record.
type Entry struct {
	At               int64   `json:"at"` // unix millis
	Provider         string  `json:"provider"`
	Model            string  `json:"modelId"`
	PromptTokens     int     `json:"promptTokens"`
	CompletionTokens int     `json:"completionTokens"`
	TotalTokens      int     `json:"totalTokens"`
	EstUsdCost       float64 `json:"estUsdCost"`
	LatencyMs        int64   `json:"latencyMs"`
	Success          bool    `json:"success"`
}

// LeaderboardRow is one ranked line of the scheduler leaderboard.
type LeaderboardRow struct {
	Provider    string
	Model       string
	Runs        int
	SuccessRate float64
	AvgCost     float64
	AvgLatency  float64
}

const maxLeaderboardWindow = 400

// Store appends telemetry records to a newline-delimited JSON file and tails
// it to compute the leaderboard. Appends are append-only and single-writer
// per process; readers only ever scan the file, never mutate it.
type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(filename string) (*Store, error) {
	if err := paths.EnsureDir(paths.GetStoreDir()); err != nil {
		return nil, err
	}
	return &Store{path: filepath.Join(paths.GetStoreDir(), filename)}, nil
}

// RecordTelemetry appends one record.
func (s *Store) RecordTelemetry(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(data, '\n'))
	return err
}

func (s *Store) tail(limit int) ([]Entry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var all []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		all = append(all, e)
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

// Leaderboard groups the last 400 telemetry records by provider:model and
// ranks them by successRate desc, avgCost asc.
func (s *Store) Leaderboard(limit int) ([]LeaderboardRow, error) {
	entries, err := s.tail(maxLeaderboardWindow)
	if err != nil {
		return nil, err
	}

	type agg struct {
		runs       int
		successes  int
		totalCost  float64
		totalLat   float64
	}
	groups := map[string]*agg{}
	order := []string{}
	for _, e := range entries {
		key := e.Provider + ":" + e.Model
		a, ok := groups[key]
		if !ok {
			a = &agg{}
			groups[key] = a
			order = append(order, key)
		}
		a.runs++
		if e.Success {
			a.successes++
		}
		a.totalCost += e.EstUsdCost
		a.totalLat += float64(e.LatencyMs)
	}

	rows := make([]LeaderboardRow, 0, len(order))
	for _, key := range order {
		a := groups[key]
		provider, model := splitKey(key)
		rows = append(rows, LeaderboardRow{
			Provider:    provider,
			Model:       model,
			Runs:        a.runs,
			SuccessRate: float64(a.successes) / float64(a.runs),
			AvgCost:     a.totalCost / float64(a.runs),
			AvgLatency:  a.totalLat / float64(a.runs),
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].SuccessRate != rows[j].SuccessRate {
			return rows[i].SuccessRate > rows[j].SuccessRate
		}
		return rows[i].AvgCost < rows[j].AvgCost
	})

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func splitKey(key string) (string, string) {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

// NowMillis is the single place that reads the wall clock for telemetry
// timestamps, so tests can substitute a fixed time by constructing Entry
// values directly instead of calling this.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
