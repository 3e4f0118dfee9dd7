// Package catalog loads the immutable building/tech/APX-shape definitions at
// startup. Lookups of unknown keys fail loudly; nothing here defaults
// silently.
package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	ErrUnknownBuildingKind = errors.New("unknown building kind")
	ErrUnknownApxShape     = errors.New("unknown apx shape")
	ErrUnknownTechTier     = errors.New("unknown tech tier")
)

// TechTierColors maps tech tier -> minimum palette colors required.
var TechTierColors = map[int]int{1: 8, 2: 16, 3: 32, 4: 64, 5: 128}

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type TickEffect struct {
	PxRate  int `json:"px_rate,omitempty"`
	ExpRate int `json:"exp_rate,omitempty"`
	ApxRate int `json:"apx_rate,omitempty"`
}

type PlaceEffect struct {
	PaletteColors int `json:"palette_colors,omitempty"`
}

type PassiveEffect struct {
	PxCap           int  `json:"px_cap,omitempty"`
	EnablesResearch bool `json:"enables_research,omitempty"`
	ResearchSpeed   int  `json:"research_speed,omitempty"`
}

type ActiveEffect struct {
	Convert     string `json:"convert,omitempty"`
	PostMessage bool   `json:"post_message,omitempty"`
}

type Effects struct {
	OnTick  *TickEffect    `json:"on_tick,omitempty"`
	OnPlace *PlaceEffect   `json:"on_place,omitempty"`
	Passive *PassiveEffect `json:"passive,omitempty"`
	Active  *ActiveEffect  `json:"active,omitempty"`
}

type Prerequisites struct {
	TechTier int      `json:"tech_tier"`
	Deps     []string `json:"deps"`
}

type BuildingTemplate struct {
	Kind              string        `json:"kind"`
	Size              Size          `json:"size"`
	CostPx            int           `json:"cost_px"`
	MinColorsRequired int           `json:"min_colors_required"`
	Color             string        `json:"color"`
	Effects           Effects       `json:"effects"`
	Prerequisites     Prerequisites `json:"prerequisites"`
}

func (t BuildingTemplate) FootprintTiles() int {
	return t.Size.Width * t.Size.Height
}

// ApxShape describes one attack shape. Size is descriptive cost-scaling
// metadata; the authoritative affected-tile set is the rule engine's literal
// enumeration.
type ApxShape struct {
	Name            string `json:"name"`
	Size            int    `json:"size"`
	Cost            int    `json:"cost"`
	CooldownSeconds int    `json:"cooldown_seconds"`
}

type Catalog struct {
	buildings map[string]BuildingTemplate
	kinds     []string
	shapes    map[string]ApxShape

	BuildingsDigest string
	ShapesDigest    string
}

// Load reads buildings.json and apx_shapes.json from configDir and validates
// cross-references (every dependency must name a defined kind).
func Load(configDir string) (*Catalog, error) {
	c := &Catalog{
		buildings: map[string]BuildingTemplate{},
		shapes:    map[string]ApxShape{},
	}

	raw, err := os.ReadFile(filepath.Join(configDir, "buildings.json"))
	if err != nil {
		return nil, err
	}
	c.BuildingsDigest = sha256Hex(raw)

	var defs []BuildingTemplate
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("buildings.json: %w", err)
	}
	for _, d := range defs {
		if d.Kind == "" {
			return nil, fmt.Errorf("buildings.json: empty kind")
		}
		if d.Size.Width <= 0 || d.Size.Height <= 0 {
			return nil, fmt.Errorf("buildings.json: %s: bad size", d.Kind)
		}
		if d.Prerequisites.TechTier < 1 || d.Prerequisites.TechTier > 5 {
			return nil, fmt.Errorf("buildings.json: %s: tech_tier out of range", d.Kind)
		}
		if _, dup := c.buildings[d.Kind]; dup {
			return nil, fmt.Errorf("buildings.json: duplicate kind %s", d.Kind)
		}
		c.buildings[d.Kind] = d
	}
	for _, d := range c.buildings {
		for _, dep := range d.Prerequisites.Deps {
			if _, ok := c.buildings[dep]; !ok {
				return nil, fmt.Errorf("buildings.json: %s depends on undefined kind %s", d.Kind, dep)
			}
		}
	}
	for kind := range c.buildings {
		c.kinds = append(c.kinds, kind)
	}
	sort.Strings(c.kinds)

	raw, err = os.ReadFile(filepath.Join(configDir, "apx_shapes.json"))
	if err != nil {
		return nil, err
	}
	c.ShapesDigest = sha256Hex(raw)

	var shapes []ApxShape
	if err := json.Unmarshal(raw, &shapes); err != nil {
		return nil, fmt.Errorf("apx_shapes.json: %w", err)
	}
	for _, s := range shapes {
		if s.Name == "" {
			return nil, fmt.Errorf("apx_shapes.json: empty name")
		}
		c.shapes[strings.ToLower(s.Name)] = s
	}

	return c, nil
}

// Building looks up a template by kind.
func (c *Catalog) Building(kind string) (BuildingTemplate, error) {
	t, ok := c.buildings[kind]
	if !ok {
		return BuildingTemplate{}, fmt.Errorf("%w: %q", ErrUnknownBuildingKind, kind)
	}
	return t, nil
}

// Shape looks up an APX shape by name, case-insensitively.
func (c *Catalog) Shape(name string) (ApxShape, error) {
	s, ok := c.shapes[strings.ToLower(name)]
	if !ok {
		return ApxShape{}, fmt.Errorf("%w: %q", ErrUnknownApxShape, name)
	}
	return s, nil
}

// TierMinColors returns the palette size a tech tier requires.
func TierMinColors(tier int) (int, error) {
	n, ok := TechTierColors[tier]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownTechTier, tier)
	}
	return n, nil
}

// Kinds returns all defined building kinds, sorted.
func (c *Catalog) Kinds() []string {
	out := make([]string, len(c.kinds))
	copy(out, c.kinds)
	return out
}

// UnlockedBy lists the kinds that name the given kind as a dependency.
func (c *Catalog) UnlockedBy(kind string) []string {
	var out []string
	for _, k := range c.kinds {
		for _, dep := range c.buildings[k].Prerequisites.Deps {
			if dep == kind {
				out = append(out, k)
				break
			}
		}
	}
	return out
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
