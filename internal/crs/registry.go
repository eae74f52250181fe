package crs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/ctessum/geom/proj"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// EPSGFile is the name of the proj4 definitions file looked up in the
// projection data directory. It uses the classic PROJ "epsg" layout:
//
//	<26912> +proj=utm +zone=12 +ellps=GRS80 +units=m +no_defs <>
const EPSGFile = "epsg"

var builtinDefs = map[int]string{
	4326:  "+proj=longlat +datum=WGS84 +no_defs",
	4269:  "+proj=longlat +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +no_defs",
	4258:  "+proj=longlat +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +no_defs",
	3857:  "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +wktext +no_defs",
	5070:  "+proj=aea +lat_1=29.5 +lat_2=45.5 +lat_0=23 +lon_0=-96 +x_0=0 +y_0=0 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
	32100: "+proj=lcc +lat_1=49 +lat_2=45 +lat_0=44.25 +lon_0=-109.5 +x_0=600000 +y_0=0 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
}

func init() {
	// NAD83 / UTM zones 1-23 N and WGS 84 / UTM zones 1-60 N.
	for zone := 1; zone <= 23; zone++ {
		builtinDefs[26900+zone] = fmt.Sprintf("+proj=utm +zone=%d +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs", zone)
	}
	for zone := 1; zone <= 60; zone++ {
		builtinDefs[32600+zone] = fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", zone)
	}
}

var epsgLine = regexp.MustCompile(`^<(\d+)>\s*(.+?)\s*<>\s*$`)

// Registry resolves proj4 definitions by EPSG code. It is built once at
// process start from an explicit projection data directory.
type Registry struct {
	defs map[int]string
}

// NewRegistry returns a registry seeded with built-in definitions. When
// dataDir is non-empty and contains an "epsg" file, its entries are added
// and override the built-ins.
func NewRegistry(dataDir string) (*Registry, error) {
	r := &Registry{defs: make(map[int]string, len(builtinDefs))}
	for k, v := range builtinDefs {
		r.defs[k] = v
	}
	if dataDir == "" {
		return r, nil
	}

	path := filepath.Join(dataDir, EPSGFile)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		zap.L().Debug("crs: no epsg file in projection data dir", zap.String("dir", dataDir))
		return r, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "crs: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var loaded int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := epsgLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		code, _ := strconv.Atoi(m[1])
		r.defs[code] = m[2]
		loaded++
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrapf(err, "crs: read %s", path)
	}

	zap.L().Info("crs: loaded projection definitions", zap.String("path", path), zap.Int("count", loaded))
	return r, nil
}

// Proj4 returns the proj4 definition for c.
func (r *Registry) Proj4(c CRS) (string, error) {
	def, ok := r.defs[c.EPSG]
	if !ok {
		return "", eris.Errorf("crs: no definition for %s", c)
	}
	return def, nil
}

// IsGeographic reports whether c has angular units, consulting the
// definition when the code is not one of the well-known geographic systems.
func (r *Registry) IsGeographic(c CRS) bool {
	if c.IsGeographic() {
		return true
	}
	def, ok := r.defs[c.EPSG]
	return ok && strings.Contains(def, "+proj=longlat")
}

// Transformer returns a coordinate transform from src to dst.
func (r *Registry) Transformer(src, dst CRS) (proj.Transformer, error) {
	srcDef, err := r.Proj4(src)
	if err != nil {
		return nil, err
	}
	dstDef, err := r.Proj4(dst)
	if err != nil {
		return nil, err
	}
	srcSR, err := proj.Parse(srcDef)
	if err != nil {
		return nil, eris.Wrapf(err, "crs: parse %s", src)
	}
	dstSR, err := proj.Parse(dstDef)
	if err != nil {
		return nil, eris.Wrapf(err, "crs: parse %s", dst)
	}
	t, err := srcSR.NewTransform(dstSR)
	if err != nil {
		return nil, eris.Wrapf(err, "crs: transform %s -> %s", src, dst)
	}
	return t, nil
}
