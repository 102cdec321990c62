//go:build property
// +build property

package build

import (
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestSpriteProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("symbol ids are never empty and stay in the slug alphabet", prop.ForAll(
		func(rel string) bool {
			id := SymbolID(rel)
			if id == "" {
				return false
			}
			for _, r := range id {
				if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '_' && r != '-' {
					return false
				}
			}
			return true
		},
		gen.AnyString(),
	))

	properties.Property("every emitted id is unique", prop.ForAll(
		func(ids []string) bool {
			seen := make(map[string]bool)
			out := make(map[string]bool)
			for _, id := range ids {
				out[uniqueID(seen, id)] = true
			}
			return len(out) == len(ids)
		},
		gen.SliceOf(gen.OneConstOf("a", "a-2", "a-3", "b", "b-2-2", "b-2")),
	))

	properties.Property("presentational attributes never survive stripping", prop.ForAll(
		func(fill, stroke, d string) bool {
			source := fmt.Sprintf(
				`<svg viewBox="0 0 8 8"><g style="color:%s"><path d="M%s" fill="%s" stroke="%s"/></g></svg>`,
				fill, d, fill, stroke)
			icon, err := stripIcon([]byte(source))
			if err != nil {
				return false
			}
			return icon.ViewBox == "0 0 8 8" &&
				!strings.Contains(icon.Body, "fill=") &&
				!strings.Contains(icon.Body, "stroke=") &&
				!strings.Contains(icon.Body, "style=") &&
				strings.Contains(icon.Body, `d="M`+d+`"`)
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
