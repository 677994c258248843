package search

import (
	_ "embed"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed gazetteer.yaml
var defaultGazetteerYAML []byte

// Gazetteer resolves a registry address to a short locality token usable in
// search queries. Aliases are checked in order before the unit list, so
// common metro shorthands win over raw administrative names.
type Gazetteer struct {
	Aliases []Alias  `yaml:"aliases"`
	Units   []string `yaml:"units"`
}

// Alias maps an address substring to the locality token to search with.
type Alias struct {
	Match    string `yaml:"match"`
	Locality string `yaml:"locality"`
}

// DefaultGazetteer returns the built-in gazetteer.
func DefaultGazetteer() *Gazetteer {
	g, err := parseGazetteer(defaultGazetteerYAML)
	if err != nil {
		// The embedded file is validated by tests; reaching this means a
		// build-time mistake.
		panic(err)
	}
	return g
}

// LoadGazetteer reads a gazetteer from a YAML file.
func LoadGazetteer(path string) (*Gazetteer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "gazetteer: read %s", path)
	}
	return parseGazetteer(data)
}

func parseGazetteer(data []byte) (*Gazetteer, error) {
	var wrapper struct {
		Gazetteer Gazetteer `yaml:"gazetteer"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "gazetteer: parse yaml")
	}
	if len(wrapper.Gazetteer.Aliases) == 0 && len(wrapper.Gazetteer.Units) == 0 {
		return nil, eris.New("gazetteer: empty")
	}
	return &wrapper.Gazetteer, nil
}

// Locality extracts a search locality from an address: alias map first, then
// the administrative unit list, then a suffix scan. Returns "" when nothing
// matches; callers drop the locality variant in that case.
func (g *Gazetteer) Locality(address string) string {
	if address == "" {
		return ""
	}

	for _, a := range g.Aliases {
		if strings.Contains(address, a.Match) {
			return a.Locality
		}
	}

	for _, unit := range g.Units {
		if strings.Contains(address, unit) {
			return unit
		}
	}

	// Last resort: any field that looks like a district or county name.
	for _, field := range strings.Fields(address) {
		if len([]rune(field)) >= 2 &&
			(strings.HasSuffix(field, "구") || strings.HasSuffix(field, "군")) {
			return field
		}
	}

	return ""
}
