package publish

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/terrain-cli/internal/db"
	"github.com/sells-group/terrain-cli/internal/pipeline"
	"github.com/sells-group/terrain-cli/internal/vector"
)

// DefaultSchema holds the terrain layer tables.
const DefaultSchema = "terrain"

// LayerColumns are the columns written by LoadFeatures, in COPY order.
var LayerColumns = []string{"aoi", "class_id", "label", "properties", "geom"}

// EnsureLayerTable creates schema.table for polygons in srid if missing.
func EnsureLayerTable(ctx context.Context, pool db.Pool, schema, table string, srid int) error {
	if _, err := pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize()); err != nil {
		return eris.Wrapf(err, "publish: create schema %s", schema)
	}
	sql := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id         bigserial PRIMARY KEY,
	aoi        text NOT NULL,
	class_id   integer NOT NULL,
	label      text,
	properties jsonb NOT NULL DEFAULT '{}',
	geom       geometry(MultiPolygon, %d) NOT NULL,
	loaded_at  timestamptz NOT NULL DEFAULT now()
)`, pgx.Identifier{schema, table}.Sanitize(), srid)
	if _, err := pool.Exec(ctx, sql); err != nil {
		return eris.Wrapf(err, "publish: create table %s.%s", schema, table)
	}
	return nil
}

// LoadFeatures replaces the rows of aoi in schema.table with fs inside one
// transaction. field names the class property of fs.
func LoadFeatures(ctx context.Context, pool db.Pool, schema, table, aoi, field string, fs *vector.FeatureSet) (int64, error) {
	rows, err := featureRows(aoi, field, fs)
	if err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "publish: begin")
	}
	del := fmt.Sprintf("DELETE FROM %s WHERE aoi = $1", pgx.Identifier{schema, table}.Sanitize())
	if _, err := tx.Exec(ctx, del, aoi); err != nil {
		_ = tx.Rollback(ctx)
		return 0, eris.Wrapf(err, "publish: clear %s.%s", schema, table)
	}
	n, err := db.CopyFromSchema(ctx, tx, schema, table, LayerColumns, rows)
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, eris.Wrap(err, "publish: load features")
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "publish: commit")
	}

	zap.L().Info("loaded layer into postgis",
		zap.String("component", "publish"),
		zap.String("table", schema+"."+table),
		zap.String("aoi", aoi),
		zap.Int64("rows", n),
	)
	return n, nil
}

// ToPostGIS creates the layer tables if needed and loads both layers of a
// successful run.
func ToPostGIS(ctx context.Context, pool db.Pool, schema string, res *pipeline.Result) (int64, error) {
	if res.Outcome != pipeline.OutcomeOK {
		return 0, nil
	}
	if schema == "" {
		schema = DefaultSchema
	}
	layers := []struct {
		table, field string
		fs           *vector.FeatureSet
	}{
		{pipeline.ElevationLayer, pipeline.ElevationField, res.Elevation},
		{pipeline.SlopeLayer, pipeline.SlopeField, res.Slope},
	}
	var total int64
	for _, l := range layers {
		if err := EnsureLayerTable(ctx, pool, schema, l.table, SRID(l.fs)); err != nil {
			return total, err
		}
		n, err := LoadFeatures(ctx, pool, schema, l.table, res.AOI, l.field, l.fs)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func featureRows(aoi, field string, fs *vector.FeatureSet) ([][]any, error) {
	rows := make([][]any, 0, fs.Len())
	for i, f := range fs.Features {
		mp, err := asMultiPolygon(f.Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "publish: feature %d", i)
		}
		data, err := ewkb.Marshal(mp.SetSRID(SRID(fs)), ewkb.NDR)
		if err != nil {
			return nil, eris.Wrapf(err, "publish: encode feature %d", i)
		}
		label, _ := f.Properties["label"].(string)
		rows = append(rows, []any{aoi, classID(f.Properties[field]), label, f.Properties, data})
	}
	return rows, nil
}

func asMultiPolygon(g geom.T) (*geom.MultiPolygon, error) {
	switch t := g.(type) {
	case *geom.MultiPolygon:
		return t.Clone(), nil
	case *geom.Polygon:
		mp := geom.NewMultiPolygon(geom.XY)
		if err := mp.Push(t); err != nil {
			return nil, eris.Wrap(err, "wrap polygon")
		}
		return mp, nil
	default:
		return nil, eris.Errorf("unsupported geometry %T", g)
	}
}

// classID accepts the int set by the vectorizer and the float64 that comes
// back from JSON.
func classID(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

// SRID is the PostGIS SRID for a layer; layers without a CRS are stored as 4326.
func SRID(fs *vector.FeatureSet) int {
	if fs.CRS.IsZero() {
		return 4326
	}
	return fs.CRS.EPSG
}
