package job

import (
	"errors"
	"fmt"
	"time"

	"github.com/etlstack/platform/pkg/source"
)

var ErrUnsupportedSourceType = errors.New("unsupported data source type")

// maxStreamWait caps the simulated stream read so a misconfigured duration
// cannot starve the worker pool.
const maxStreamWait = 5 * time.Second

// Processor derives a record count from (source type, configuration). It is
// the only place configuration keys are read; missing keys fall back to the
// documented defaults.
//
// Keys per source type:
//
//	database: batch_size (1000)
//	api:      page_size (100), pages (5)
//	file:     estimated_records (5000)
//	stream:   duration_seconds (10), records_per_second (100)
type Processor struct {
	wait func(time.Duration)
}

func NewProcessor() *Processor {
	return &Processor{wait: time.Sleep}
}

func (p *Processor) Process(sourceType string, configuration map[string]interface{}) (int64, error) {
	var records int64
	switch sourceType {
	case source.TypeDatabase:
		p.wait(2 * time.Second)
		records = configInt(configuration, "batch_size", 1000)
	case source.TypeAPI:
		p.wait(1500 * time.Millisecond)
		records = configInt(configuration, "page_size", 100) * configInt(configuration, "pages", 5)
	case source.TypeFile:
		p.wait(3 * time.Second)
		records = configInt(configuration, "estimated_records", 5000)
	case source.TypeStream:
		duration := configInt(configuration, "duration_seconds", 10)
		rate := configInt(configuration, "records_per_second", 100)
		wait := time.Duration(duration) * time.Second
		if wait > maxStreamWait {
			wait = maxStreamWait
		}
		if wait > 0 {
			p.wait(wait)
		}
		records = duration * rate
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, sourceType)
	}

	if records < 0 {
		records = 0
	}
	return records, nil
}

// configInt reads an integer configuration value. JSON decoding yields
// float64; accept the numeric shapes callers actually send.
func configInt(configuration map[string]interface{}, key string, fallback int64) int64 {
	if configuration == nil {
		return fallback
	}
	raw, ok := configuration[key]
	if !ok {
		return fallback
	}
	switch v := raw.(type) {
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	default:
		return fallback
	}
}
