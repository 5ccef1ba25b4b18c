package shape

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

// Material is a predefined surface material used by the viewer.
type Material int

const (
	MaterialNone Material = iota
	MaterialAluminium
	MaterialBrass
	MaterialBronze
	MaterialCharcoal
	MaterialChrome
	MaterialCopper
	MaterialDefault
	MaterialDiamond
	MaterialGlass
	MaterialGold
	MaterialJade
	MaterialMetalized
	MaterialNeonGNC
	MaterialNeonPHC
	MaterialObsidian
	MaterialPewter
	MaterialPlaster
	MaterialPlastic
	MaterialSatin
	MaterialShinyPlastic
	MaterialSilver
	MaterialSteel
	MaterialStone
	MaterialWater

	materialCount
)

var materialNames = [...]string{
	MaterialNone:         "",
	MaterialAluminium:    "aluminium",
	MaterialBrass:        "brass",
	MaterialBronze:       "bronze",
	MaterialCharcoal:     "charcoal",
	MaterialChrome:       "chrome",
	MaterialCopper:       "copper",
	MaterialDefault:      "default",
	MaterialDiamond:      "diamond",
	MaterialGlass:        "glass",
	MaterialGold:         "gold",
	MaterialJade:         "jade",
	MaterialMetalized:    "metalized",
	MaterialNeonGNC:      "neon_gnc",
	MaterialNeonPHC:      "neon_phc",
	MaterialObsidian:     "obsidian",
	MaterialPewter:       "pewter",
	MaterialPlaster:      "plaster",
	MaterialPlastic:      "plastic",
	MaterialSatin:        "satin",
	MaterialShinyPlastic: "shiny_plastic",
	MaterialSilver:       "silver",
	MaterialSteel:        "steel",
	MaterialStone:        "stone",
	MaterialWater:        "water",
}

func (m Material) String() string {
	if m >= 0 && m < materialCount {
		return materialNames[m]
	}
	return fmt.Sprintf("Material(%d)", int(m))
}

// ParseMaterial accepts a material name; the empty string is MaterialNone.
// Hyphens are treated as underscores.
func ParseMaterial(name string) (Material, error) {
	name = strings.ReplaceAll(strings.ToLower(name), "-", "_")
	for i, n := range materialNames {
		if n == name {
			return Material(i), nil
		}
	}
	return MaterialNone, fmt.Errorf("unknown material %q", name)
}

// Materials returns every named material.
func Materials() []string {
	return append([]string(nil), materialNames[1:]...)
}

// NormalizeColor parses "#rgb", "#rrggbb" or a CSS colour name and returns
// the "#rrggbb" form. The empty string means "no colour" and is returned
// unchanged.
func NormalizeColor(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if strings.HasPrefix(s, "#") {
		hex := s[1:]
		if len(hex) == 3 {
			hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
		}
		if len(hex) != 6 {
			return "", fmt.Errorf("invalid colour %q", s)
		}
		if _, err := strconv.ParseUint(hex, 16, 32); err != nil {
			return "", fmt.Errorf("invalid colour %q", s)
		}
		return "#" + strings.ToLower(hex), nil
	}
	c, ok := colornames.Map[strings.ToLower(s)]
	if !ok {
		return "", fmt.Errorf("unknown colour %q", s)
	}
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B), nil
}
