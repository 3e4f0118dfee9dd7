package grid

import (
	"testing"
)

func TestGeoToTile_RoundTripIdempotent(t *testing.T) {
	cases := []struct {
		lat, lng float64
		zoom     int
	}{
		{0, 0, 18},
		{35.6762, 139.6503, 18},
		{-33.8688, 151.2093, 18},
		{51.5074, -0.1278, 15},
		{80, 179.9, 18},
		{-80, -179.9, 18},
	}
	for _, tc := range cases {
		tile := GeoToTile(tc.lat, tc.lng, tc.zoom)
		lat, lng := TileToGeo(tile, tc.zoom)
		again := GeoToTile(lat, lng, tc.zoom)
		if again != tile {
			t.Errorf("GeoToTile(TileToGeo(%v)) = %v at zoom %d", tile, again, tc.zoom)
		}
	}
}

func TestTileID_RoundTrip(t *testing.T) {
	c := TileCoord{LatIdx: -42, LonIdx: 17}
	if c.ID() != "-42_17" {
		t.Fatalf("ID = %q", c.ID())
	}
	parsed, err := ParseTileID(c.ID())
	if err != nil || parsed != c {
		t.Fatalf("ParseTileID: %v, %v", parsed, err)
	}
	for _, bad := range []string{"", "12", "a_b", "1_2_3x"} {
		if _, err := ParseTileID(bad); err == nil {
			t.Errorf("ParseTileID(%q) should fail", bad)
		}
	}
}

func TestQuadkey_RoundTrip(t *testing.T) {
	c := TileCoord{LatIdx: 12345, LonIdx: 54321}
	key := TileToQuadkey(c, 18)
	if len(key) != 18 {
		t.Fatalf("key length %d", len(key))
	}
	back, zoom, err := QuadkeyToTile(key)
	if err != nil || zoom != 18 || back != c {
		t.Fatalf("QuadkeyToTile(%q) = %v, %d, %v", key, back, zoom, err)
	}
	if _, _, err := QuadkeyToTile("0124x"); err == nil {
		t.Fatalf("malformed quadkey should fail")
	}
}

func TestTileArea_CountsAndBias(t *testing.T) {
	center := TileCoord{LatIdx: 10, LonIdx: 10}

	area := TileArea(center, 3, 3)
	if len(area) != 9 {
		t.Fatalf("3x3 area has %d tiles", len(area))
	}
	// Odd sizes are symmetric around the center.
	if area[0] != (TileCoord{LatIdx: 9, LonIdx: 9}) || area[8] != (TileCoord{LatIdx: 11, LonIdx: 11}) {
		t.Fatalf("3x3 corners: %v .. %v", area[0], area[8])
	}

	// Even sizes bias toward the low side: a 6x6 spans [-3,+2] around center.
	area = TileArea(center, 6, 6)
	if len(area) != 36 {
		t.Fatalf("6x6 area has %d tiles", len(area))
	}
	if area[0] != (TileCoord{LatIdx: 7, LonIdx: 7}) || area[35] != (TileCoord{LatIdx: 12, LonIdx: 12}) {
		t.Fatalf("6x6 corners: %v .. %v", area[0], area[35])
	}
}

func TestAdjacentTiles(t *testing.T) {
	adj := AdjacentTiles(TileCoord{LatIdx: 0, LonIdx: 0})
	if len(adj) != 8 {
		t.Fatalf("got %d neighbours", len(adj))
	}
	seen := map[TileID]struct{}{}
	for _, c := range adj {
		if c == (TileCoord{}) {
			t.Fatalf("center included in neighbours")
		}
		seen[c.ID()] = struct{}{}
	}
	if len(seen) != 8 {
		t.Fatalf("duplicate neighbours")
	}
}

func TestShardID_NegativeIndices(t *testing.T) {
	// floor division, not truncation: tile (-1,-1) is in shard (-1,-1).
	if got := ShardID(TileCoord{LatIdx: -1, LonIdx: -1}); got != "shard_-1_-1" {
		t.Fatalf("ShardID(-1,-1) = %q", got)
	}
	if got := ShardID(TileCoord{LatIdx: 63, LonIdx: 64}); got != "shard_0_1" {
		t.Fatalf("ShardID(63,64) = %q", got)
	}
	if got := ShardID(TileCoord{LatIdx: -64, LonIdx: -65}); got != "shard_-1_-2" {
		t.Fatalf("ShardID(-64,-65) = %q", got)
	}
}

func TestShardsOf_Distinct(t *testing.T) {
	tiles := []TileCoord{
		{LatIdx: 0, LonIdx: 0},
		{LatIdx: 1, LonIdx: 1},
		{LatIdx: 0, LonIdx: 64},
	}
	shards := ShardsOf(tiles)
	if len(shards) != 2 {
		t.Fatalf("shards = %v", shards)
	}
}

func TestRegionKey(t *testing.T) {
	if got := RegionKey(TileCoord{LatIdx: 250, LonIdx: 99}, 100); got != "2_0" {
		t.Fatalf("RegionKey = %q", got)
	}
	if got := RegionKey(TileCoord{LatIdx: -1, LonIdx: -100}, 100); got != "-1_-1" {
		t.Fatalf("RegionKey negative = %q", got)
	}
}

func TestDistance(t *testing.T) {
	d := Distance(TileCoord{LatIdx: 0, LonIdx: 0}, TileCoord{LatIdx: 3, LonIdx: 4})
	if d != 5 {
		t.Fatalf("Distance = %v", d)
	}
}
