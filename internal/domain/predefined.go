package domain

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPredefinedDomains returns the named domains every deployment knows.
func DefaultPredefinedDomains() map[string]Grid {
	return map[string]Grid{
		"wnat":   {XInit: -98.0, YInit: 10.0, XEnd: -60.0, YEnd: 45.0, DI: 0.25, DJ: 0.25},
		"gom":    {XInit: -98.0, YInit: 18.0, XEnd: -80.0, YEnd: 31.0, DI: 0.1, DJ: 0.1},
		"global": {XInit: -180.0, YInit: -90.0, XEnd: 180.0, YEnd: 90.0, DI: 0.25, DJ: 0.25},
	}
}

type predefinedFile struct {
	Domains map[string]Grid `yaml:"domains"`
}

// LoadPredefinedDomains reads extra named domains from a YAML file and merges
// them over the defaults. An empty path returns the defaults.
//
//	domains:
//	  carib:
//	    x_init: -90
//	    y_init: 8
//	    x_end: -58
//	    y_end: 28
//	    di: 0.1
func LoadPredefinedDomains(path string) (map[string]Grid, error) {
	out := DefaultPredefinedDomains()
	if path == "" {
		return out, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read predefined domains: %w", err)
	}
	var f predefinedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse predefined domains: %w", err)
	}

	for name, g := range f.Domains {
		if g.DJ == 0 {
			g.DJ = g.DI
		}
		if g.DI <= 0 || g.XEnd <= g.XInit || g.YEnd <= g.YInit {
			return nil, fmt.Errorf("predefined domain %q has an empty extent or non-positive resolution", name)
		}
		out[strings.ToLower(name)] = g
	}
	return out, nil
}
