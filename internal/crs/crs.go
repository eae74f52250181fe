// Package crs models coordinate reference systems by EPSG code and resolves
// proj4 definitions for vector reprojection.
package crs

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// CRS identifies a coordinate reference system by EPSG code. The zero value
// means "unknown".
type CRS struct {
	EPSG int
}

// WGS84 is geographic longitude/latitude on the WGS 84 datum.
var WGS84 = MustParse("EPSG:4326")

// NAD83 is geographic longitude/latitude on the NAD83 datum, used by the
// National Elevation Dataset.
var NAD83 = MustParse("EPSG:4269")

// lonLatDatums are geographic systems whose datums differ by well under a
// meter, so data in any of them can be combined without reprojection.
var lonLatDatums = map[int]bool{
	4326: true, // WGS 84
	4269: true, // NAD83
	4258: true, // ETRS89
	4617: true, // NAD83(CSRS)
	6318: true, // NAD83(2011)
}

// geographic lists the angular systems we know about.
var geographic = map[int]bool{
	4326: true,
	4269: true,
	4258: true,
	4267: true, // NAD27
	4617: true,
	4979: true,
	6318: true,
}

// String renders the CRS as "EPSG:<code>", or "" for the zero value.
func (c CRS) String() string {
	if c.EPSG == 0 {
		return ""
	}
	return fmt.Sprintf("EPSG:%d", c.EPSG)
}

// IsZero reports whether the CRS is unknown.
func (c CRS) IsZero() bool { return c.EPSG == 0 }

// IsGeographic reports whether coordinates are angular (degrees).
func (c CRS) IsGeographic() bool { return geographic[c.EPSG] }

// Compatible reports whether data in a and b can be combined without
// reprojection: identical codes, or two lon/lat systems on near-identical datums.
func Compatible(a, b CRS) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	if a == b {
		return true
	}
	return lonLatDatums[a.EPSG] && lonLatDatums[b.EPSG]
}

// Parse accepts "EPSG:4326", "epsg:4326", "4326", OGC URNs such as
// "urn:ogc:def:crs:EPSG::4269" and the CRS84 URN.
func Parse(s string) (CRS, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return CRS{}, eris.New("crs: empty identifier")
	}
	lower := strings.ToLower(raw)
	if strings.HasSuffix(lower, "crs84") {
		return WGS84, nil
	}

	code := raw
	if i := strings.LastIndex(raw, ":"); i >= 0 {
		code = raw[i+1:]
	}
	n, err := strconv.Atoi(code)
	if err != nil || n <= 0 {
		return CRS{}, eris.Errorf("crs: unrecognized identifier %q", s)
	}
	return CRS{EPSG: n}, nil
}

// MustParse is like Parse but panics on error. Intended for package-level values.
func MustParse(s string) CRS {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}
