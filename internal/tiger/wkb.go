package tiger

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"
)

// EncodeWKB converts a block geometry to EWKB bytes with SRID 4326.
// Returns nil, nil for nil geometry.
func EncodeWKB(mp *geom.MultiPolygon) ([]byte, error) {
	if mp == nil {
		return nil, nil
	}
	if mp.SRID() == 0 {
		mp = mp.Clone().SetSRID(SRID)
	}
	data, err := ewkb.Marshal(mp, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "tiger: encode WKB")
	}
	return data, nil
}

// DecodeWKB parses EWKB bytes produced by EncodeWKB. Polygons are promoted
// to single-member multipolygons.
func DecodeWKB(data []byte) (*geom.MultiPolygon, error) {
	if len(data) == 0 {
		return nil, nil
	}
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "tiger: decode WKB")
	}
	return toMultiPolygon(g)
}

// toMultiPolygon normalizes polygonal geometry to a MultiPolygon in SRID 4326.
func toMultiPolygon(g geom.T) (*geom.MultiPolygon, error) {
	switch v := g.(type) {
	case nil:
		return nil, nil
	case *geom.MultiPolygon:
		if v.NumPolygons() == 0 {
			return nil, nil
		}
		return v.SetSRID(SRID), nil
	case *geom.Polygon:
		if v.NumLinearRings() == 0 {
			return nil, nil
		}
		mp := geom.NewMultiPolygon(v.Layout()).SetSRID(SRID)
		if err := mp.Push(v); err != nil {
			return nil, eris.Wrap(err, "tiger: promote polygon")
		}
		return mp, nil
	default:
		return nil, eris.Errorf("tiger: unsupported geometry %T", g)
	}
}

// shapeToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon.
// Clockwise rings start a new polygon; counter-clockwise rings are holes of
// the preceding polygon. Returns nil for empty or non-polygon shapes.
func shapeToMultiPolygon(shape shp.Shape) *geom.MultiPolygon {
	p, ok := shape.(*shp.Polygon)
	if !ok || p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var polys [][][]geom.Coord
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if start < 0 || end > int32(len(p.Points)) || end-start < 4 {
			zap.L().Debug("tiger: skipping malformed polygon ring", zap.Int32("part", i))
			continue
		}

		ring := make([]geom.Coord, 0, end-start)
		for j := start; j < end; j++ {
			ring = append(ring, geom.Coord{p.Points[j].X, p.Points[j].Y})
		}

		if signedArea(ring) > 0 && len(polys) > 0 {
			last := len(polys) - 1
			polys[last] = append(polys[last], ring)
			continue
		}
		polys = append(polys, [][]geom.Coord{ring})
	}

	if len(polys) == 0 {
		return nil
	}
	mp, err := geom.NewMultiPolygon(geom.XY).SetCoords(polys)
	if err != nil {
		zap.L().Debug("tiger: skipping malformed polygon", zap.Error(err))
		return nil
	}
	return mp.SetSRID(SRID)
}

// signedArea is the shoelace area of a ring: positive when counter-clockwise.
func signedArea(ring []geom.Coord) float64 {
	var a float64
	for i := 0; i+1 < len(ring); i++ {
		a += ring[i][0]*ring[i+1][1] - ring[i+1][0]*ring[i][1]
	}
	return a / 2
}

// centroid returns the mean of a multipolygon's exterior ring vertices.
// Used when the source carries no interior point.
func centroid(mp *geom.MultiPolygon) (lat, lon float64) {
	if mp == nil {
		return 0, 0
	}
	var n int
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		if poly.NumLinearRings() == 0 {
			continue
		}
		ring := poly.LinearRing(0)
		for j := 0; j < ring.NumCoords(); j++ {
			c := ring.Coord(j)
			lon += c.X()
			lat += c.Y()
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return lat / float64(n), lon / float64(n)
}
