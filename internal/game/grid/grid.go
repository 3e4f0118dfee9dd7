// Package grid holds the pure tile-coordinate math: geographic <-> tile
// transforms, shard grouping, quadkeys, and footprint enumeration. Nothing
// here carries state.
package grid

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ShardSize is the square shard edge in tiles. Shards exist only to scope
// real-time subscriptions.
const ShardSize = 64

// TileID is the canonical "{lat_idx}_{lon_idx}" map key for a tile.
type TileID = string

// TileCoord is an integer grid address at a fixed zoom level.
type TileCoord struct {
	LatIdx int `json:"lat_idx"`
	LonIdx int `json:"lon_idx"`
}

func (c TileCoord) ID() TileID {
	return strconv.Itoa(c.LatIdx) + "_" + strconv.Itoa(c.LonIdx)
}

func ParseTileID(id TileID) (TileCoord, error) {
	lat, lon, ok := strings.Cut(id, "_")
	if !ok {
		return TileCoord{}, fmt.Errorf("malformed tile id %q", id)
	}
	latIdx, err := strconv.Atoi(lat)
	if err != nil {
		return TileCoord{}, fmt.Errorf("malformed tile id %q", id)
	}
	lonIdx, err := strconv.Atoi(lon)
	if err != nil {
		return TileCoord{}, fmt.Errorf("malformed tile id %q", id)
	}
	return TileCoord{LatIdx: latIdx, LonIdx: lonIdx}, nil
}

// GeoToTile maps a lat/lng pair to its Web-Mercator tile at the given zoom.
// lat = +-90 degrees makes tan/sec blow up and the NaN propagates into the
// result; callers are expected to stay inside the Mercator domain.
func GeoToTile(lat, lng float64, zoom int) TileCoord {
	n := float64(int(1) << uint(zoom))
	latRad := lat * math.Pi / 180
	latIdx := math.Floor((1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n)
	lonIdx := math.Floor((lng + 180) / 360 * n)
	return TileCoord{LatIdx: int(latIdx), LonIdx: int(lonIdx)}
}

// TileToGeo returns the geographic center of a tile via the inverse Mercator.
// GeoToTile(TileToGeo(c)) == c, but the round trip is lossy for arbitrary
// points inside the tile (quantization).
func TileToGeo(c TileCoord, zoom int) (lat, lng float64) {
	n := float64(int(1) << uint(zoom))
	x := (float64(c.LonIdx) + 0.5) / n
	y := (float64(c.LatIdx) + 0.5) / n
	lng = x*360 - 180
	lat = math.Atan(math.Sinh(math.Pi*(1-2*y))) * 180 / math.Pi
	return lat, lng
}

// Distance is Euclidean in tile units. Only meaningful for same-zoom
// comparisons (base spacing checks).
func Distance(a, b TileCoord) float64 {
	dx := float64(a.LonIdx - b.LonIdx)
	dy := float64(a.LatIdx - b.LatIdx)
	return math.Sqrt(dx*dx + dy*dy)
}

// AdjacentTiles returns the 8 neighbours of a tile.
func AdjacentTiles(c TileCoord) []TileCoord {
	out := make([]TileCoord, 0, 8)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			out = append(out, TileCoord{LatIdx: c.LatIdx + dy, LonIdx: c.LonIdx + dx})
		}
	}
	return out
}

// TileArea enumerates a width x height rectangle centered on c, floor-biased
// for even sizes. Row-major order; callers must not depend on more than set
// membership.
func TileArea(c TileCoord, width, height int) []TileCoord {
	halfW := width / 2
	halfH := height / 2
	out := make([]TileCoord, 0, width*height)
	for dy := -halfH; dy < height-halfH; dy++ {
		for dx := -halfW; dx < width-halfW; dx++ {
			out = append(out, TileCoord{LatIdx: c.LatIdx + dy, LonIdx: c.LonIdx + dx})
		}
	}
	return out
}

// ShardID groups a tile into its fixed-size shard key.
func ShardID(c TileCoord) string {
	return fmt.Sprintf("shard_%d_%d", floorDiv(c.LatIdx, ShardSize), floorDiv(c.LonIdx, ShardSize))
}

// ShardsOf returns the distinct shard ids touched by a tile set.
func ShardsOf(tiles []TileCoord) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, t := range tiles {
		id := ShardID(t)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// TileToQuadkey interleaves the tile's index bits; the key length equals zoom.
func TileToQuadkey(c TileCoord, zoom int) string {
	var b strings.Builder
	for i := zoom; i > 0; i-- {
		digit := byte('0')
		mask := 1 << uint(i-1)
		if c.LonIdx&mask != 0 {
			digit++
		}
		if c.LatIdx&mask != 0 {
			digit += 2
		}
		b.WriteByte(digit)
	}
	return b.String()
}

// QuadkeyToTile is the inverse of TileToQuadkey; the returned zoom is the key
// length.
func QuadkeyToTile(key string) (TileCoord, int, error) {
	var c TileCoord
	zoom := len(key)
	for i := zoom; i > 0; i-- {
		mask := 1 << uint(i-1)
		switch key[zoom-i] {
		case '0':
		case '1':
			c.LonIdx |= mask
		case '2':
			c.LatIdx |= mask
		case '3':
			c.LonIdx |= mask
			c.LatIdx |= mask
		default:
			return TileCoord{}, 0, fmt.Errorf("malformed quadkey %q", key)
		}
	}
	return c, zoom, nil
}

// floorDiv rounds toward negative infinity, unlike Go's truncating division.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// RegionKey groups tiles into coarse regions for per-region rate limiting.
func RegionKey(c TileCoord, regionSize int) string {
	if regionSize <= 0 {
		regionSize = 1
	}
	return fmt.Sprintf("%d_%d", floorDiv(c.LatIdx, regionSize), floorDiv(c.LonIdx, regionSize))
}
