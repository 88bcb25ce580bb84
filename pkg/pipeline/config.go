package pipeline

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type StageConfig struct {
	Name        string `yaml:"name" json:"name"`
	BatchSize   int    `yaml:"batch_size" json:"batch_size"`
	SourceTable string `yaml:"source_table" json:"source_table"`
	TargetTable string `yaml:"target_table" json:"target_table"`
}

type ScheduleConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Hour     int           `yaml:"hour" json:"hour"`
	Interval time.Duration `yaml:"interval" json:"interval"`
}

type SensorConfig struct {
	Interval time.Duration `yaml:"interval" json:"interval"`
	Window   time.Duration `yaml:"window" json:"window"`
}

type Config struct {
	Pipeline StageConfig `yaml:"pipeline" json:"pipeline"`

	DailySchedule    ScheduleConfig `yaml:"daily_schedule" json:"daily_schedule"`
	FrequentSchedule ScheduleConfig `yaml:"frequent_schedule" json:"frequent_schedule"`

	DataAvailabilitySensor SensorConfig `yaml:"data_availability_sensor" json:"data_availability_sensor"`
	FailureRecoverySensor  SensorConfig `yaml:"failure_recovery_sensor" json:"failure_recovery_sensor"`
}

func LoadConfig(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultConfig(), err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func DefaultConfig() Config {
	return Config{
		Pipeline: StageConfig{
			Name:        "offline_etl",
			BatchSize:   1000,
			SourceTable: "raw_data",
			TargetTable: "processed_data",
		},
		// Full chain daily at 02:00 UTC; the frequent schedule ships
		// disabled.
		DailySchedule:    ScheduleConfig{Enabled: true, Hour: 2},
		FrequentSchedule: ScheduleConfig{Enabled: false, Interval: 6 * time.Hour},

		DataAvailabilitySensor: SensorConfig{Interval: time.Minute, Window: time.Hour},
		FailureRecoverySensor:  SensorConfig{Interval: time.Minute, Window: 4 * time.Hour},
	}
}
