package pipeline

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoRecords    = errors.New("no records after cleaning")
	ErrDuplicateIDs = errors.New("duplicate ids found")
)

// Row is the synthetic unit flowing through the asset chain.
type Row struct {
	ID            int
	Name          string
	Value         float64
	Status        string
	ProcessedAt   time.Time
	ValueCategory string
}

// Extract generates a synthetic batch; a real deployment would read from the
// configured source systems here.
func Extract(cfg StageConfig) []Row {
	size := cfg.BatchSize
	if size <= 0 {
		size = 1000
	}
	rows := make([]Row, 0, size)
	for i := 1; i <= size; i++ {
		rows = append(rows, Row{
			ID:     i,
			Name:   fmt.Sprintf("Record_%d", i),
			Value:  float64(i * 10),
			Status: "active",
		})
	}
	return rows
}

// Clean drops incomplete rows and stamps derived columns. Empty output and
// duplicate identifiers are hard preconditions: both abort the run.
func Clean(rows []Row) ([]Row, error) {
	cleaned := make([]Row, 0, len(rows))
	seen := make(map[int]struct{}, len(rows))
	now := time.Now().UTC()

	for _, row := range rows {
		if row.ID == 0 || row.Name == "" {
			continue
		}
		if _, dup := seen[row.ID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateIDs, row.ID)
		}
		seen[row.ID] = struct{}{}

		row.ProcessedAt = now
		row.ValueCategory = categorize(row.Value)
		cleaned = append(cleaned, row)
	}

	if len(cleaned) == 0 {
		return nil, ErrNoRecords
	}
	return cleaned, nil
}

// Aggregate reduces the cleaned batch to reporting metrics. Numeric entries
// are later persisted by Load; distributions are informational.
func Aggregate(rows []Row) map[string]interface{} {
	var sum, min, max float64
	valueDist := map[string]int{}
	statusDist := map[string]int{}

	for i, row := range rows {
		sum += row.Value
		if i == 0 || row.Value < min {
			min = row.Value
		}
		if i == 0 || row.Value > max {
			max = row.Value
		}
		valueDist[row.ValueCategory]++
		statusDist[row.Status]++
	}

	avg := 0.0
	if len(rows) > 0 {
		avg = sum / float64(len(rows))
	}

	return map[string]interface{}{
		"total_records":       len(rows),
		"avg_value":           avg,
		"min_value":           min,
		"max_value":           max,
		"value_distribution":  valueDist,
		"status_distribution": statusDist,
		"processed_at":        time.Now().UTC().Format(time.RFC3339),
	}
}

func categorize(value float64) string {
	switch {
	case value <= 100:
		return "low"
	case value <= 500:
		return "medium"
	default:
		return "high"
	}
}
