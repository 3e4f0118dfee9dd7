package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	GenerationIntervalMs int `yaml:"generation_interval_ms"`
	GracePeriodMs        int `yaml:"grace_period_ms"`
	TotalWorldTiles      int `yaml:"total_world_tiles"`

	RegionSize      int `yaml:"region_size"`
	BaseMinDistance int `yaml:"base_min_distance"`

	Starting   Starting   `yaml:"starting"`
	RateLimits RateLimits `yaml:"rate_limits"`
	WS         WS         `yaml:"ws"`
}

type Starting struct {
	Px              int `yaml:"px"`
	PaletteColors   int `yaml:"palette_colors"`
	StorageCapacity int `yaml:"storage_capacity"`
	TechLevel       int `yaml:"tech_level"`
}

type RateLimits struct {
	TerritoryPerRegionPerMinute int `yaml:"territory_per_region_per_minute"`
	BuildingPerRegionPerMinute  int `yaml:"building_per_region_per_minute"`
	ApxPerRegionPerHour         int `yaml:"apx_per_region_per_hour"`
}

type WS struct {
	SendQueueSize  int     `yaml:"send_queue_size"`
	ReadRatePerSec float64 `yaml:"read_rate_per_sec"`
	ReadBurst      int     `yaml:"read_burst"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.applyDefaults()
	return t, nil
}

func Defaults() Tuning {
	var t Tuning
	t.applyDefaults()
	return t
}

func (t *Tuning) applyDefaults() {
	if t.GenerationIntervalMs <= 0 {
		t.GenerationIntervalMs = 30_000
	}
	if t.GracePeriodMs <= 0 {
		t.GracePeriodMs = 300_000
	}
	if t.TotalWorldTiles <= 0 {
		t.TotalWorldTiles = 1_000_000
	}
	if t.RegionSize <= 0 {
		t.RegionSize = 100
	}
	if t.BaseMinDistance <= 0 {
		t.BaseMinDistance = 50
	}
	if t.Starting.Px <= 0 {
		t.Starting.Px = 30
	}
	if t.Starting.PaletteColors <= 0 {
		t.Starting.PaletteColors = 8
	}
	if t.Starting.StorageCapacity <= 0 {
		t.Starting.StorageCapacity = 200
	}
	if t.Starting.TechLevel <= 0 {
		t.Starting.TechLevel = 1
	}
	if t.RateLimits.TerritoryPerRegionPerMinute <= 0 {
		t.RateLimits.TerritoryPerRegionPerMinute = 100
	}
	if t.RateLimits.BuildingPerRegionPerMinute <= 0 {
		t.RateLimits.BuildingPerRegionPerMinute = 25
	}
	if t.RateLimits.ApxPerRegionPerHour <= 0 {
		t.RateLimits.ApxPerRegionPerHour = 10
	}
	if t.WS.SendQueueSize <= 0 {
		t.WS.SendQueueSize = 64
	}
	if t.WS.ReadRatePerSec <= 0 {
		t.WS.ReadRatePerSec = 40
	}
	if t.WS.ReadBurst <= 0 {
		t.WS.ReadBurst = 80
	}
}
