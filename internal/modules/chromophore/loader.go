package chromophore

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrMissingData is returned when the data source is absent or holds fewer sites than requested.
	ErrMissingData = errors.New("missing chromophore data")
	// ErrMalformedData is returned when a value in the data source cannot be parsed.
	ErrMalformedData = errors.New("malformed chromophore data")
)

// linesPerSite is the number of non-blank lines describing one site:
// label, ground energy, excited energy, center of mass, ground dipole,
// excited dipole and transition dipole.
const linesPerSite = 7

// LoadFile reads n sites from path. Files ending in .json are decoded with
// LoadJSON, anything else with Load.
func LoadFile(path string, n int) ([]Site, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no data path given", ErrMissingData)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingData, err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return LoadJSON(f, n)
	}
	return Load(f, n)
}

// Load parses n sites from the plain-text layout:
//
//	1
//	Ground state energy: -0.5
//	Excited state energy: -0.3
//	Center of mass: 0.0, 0.0, 0.0
//	Ground state dipole moment: 0.1, 0.0, 0.0
//	Excited state dipole moment: 0.2, 0.0, 0.0
//	Transition dipole moment: 0.0, 0.5, 0.0
//
// Values follow the first colon on each line and blank lines between
// blocks are ignored.
func Load(r io.Reader, n int) ([]Site, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: number of sites must be positive, got %d", ErrMissingData, n)
	}

	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingData, err)
	}

	if len(lines) < n*linesPerSite {
		return nil, fmt.Errorf("%w: need %d sites (%d lines), found %d lines",
			ErrMissingData, n, n*linesPerSite, len(lines))
	}

	sites := make([]Site, n)
	for a := 0; a < n; a++ {
		block := lines[a*linesPerSite : (a+1)*linesPerSite]
		site, err := parseBlock(block)
		if err != nil {
			return nil, fmt.Errorf("site %d: %w", a, err)
		}
		sites[a] = site
	}
	return sites, nil
}

// LoadJSON decodes a JSON array of sites and returns the first n of them.
func LoadJSON(r io.Reader, n int) ([]Site, error) {
	var sites []Site
	if err := json.NewDecoder(r).Decode(&sites); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	if n <= 0 || len(sites) < n {
		return nil, fmt.Errorf("%w: need %d sites, found %d", ErrMissingData, n, len(sites))
	}
	sites = sites[:n]
	if err := Validate(sites); err != nil {
		return nil, err
	}
	return sites, nil
}

// Validate rejects sites carrying non-finite numbers.
func Validate(sites []Site) error {
	for a, s := range sites {
		values := []float64{s.GroundEnergy, s.ExcitedEnergy}
		for _, v := range []Vec3{s.CenterOfMass, s.GroundDipole, s.ExcitedDipole, s.TransitionDipole} {
			values = append(values, v[:]...)
		}
		for _, v := range values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: site %d holds a non-finite value", ErrMalformedData, a)
			}
		}
	}
	return nil
}

func parseBlock(block []string) (Site, error) {
	var s Site
	var err error

	// block[0] is the site label
	if s.GroundEnergy, err = parseScalar(block[1]); err != nil {
		return s, err
	}
	if s.ExcitedEnergy, err = parseScalar(block[2]); err != nil {
		return s, err
	}
	if s.CenterOfMass, err = parseVector(block[3]); err != nil {
		return s, err
	}
	if s.GroundDipole, err = parseVector(block[4]); err != nil {
		return s, err
	}
	if s.ExcitedDipole, err = parseVector(block[5]); err != nil {
		return s, err
	}
	if s.TransitionDipole, err = parseVector(block[6]); err != nil {
		return s, err
	}
	return s, Validate([]Site{s})
}

func valuePart(line string) string {
	if i := strings.Index(line, ":"); i >= 0 {
		return strings.TrimSpace(line[i+1:])
	}
	return line
}

func parseScalar(line string) (float64, error) {
	v, err := strconv.ParseFloat(valuePart(line), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrMalformedData, line, err)
	}
	return v, nil
}

func parseVector(line string) (Vec3, error) {
	var v Vec3
	parts := strings.Split(valuePart(line), ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("%w: %q: expected 3 components, got %d", ErrMalformedData, line, len(parts))
	}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return v, fmt.Errorf("%w: %q: %v", ErrMalformedData, line, err)
		}
		v[i] = f
	}
	return v, nil
}
