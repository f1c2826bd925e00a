package stylesheet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livefir/editpreview/internal/overrides"
)

func TestBuild_Empty(t *testing.T) {
	s := Build(overrides.GlobalStyles{}, Theme{})
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, "", s.Minified())
}

func TestBuild_Slots(t *testing.T) {
	g := overrides.GlobalStyles{
		HeadingColor: "#111111",
		ButtonColor:  "#2563eb",
		ButtonRadius: "12px",
	}
	s := Build(g, Theme{Scope: "#pv-root"})
	if !assert.Equal(t, 3, s.Len()) {
		return
	}

	out := s.String()
	assert.Contains(t, out, "#pv-root h1, #pv-root h2")
	assert.Contains(t, out, "color: #111111 !important")
	assert.Contains(t, out, "background-color: #2563eb !important; border-color: #2563eb !important")
	assert.Contains(t, out, "border-radius: 12px !important")

	// Heading rule comes before the button rules.
	assert.Less(t, strings.Index(out, "h1"), strings.Index(out, "background-color"))
	assert.Equal(t, out, Build(g, Theme{Scope: "#pv-root"}).String(), "output is deterministic")
}

func TestBuild_DarkTheme(t *testing.T) {
	g := overrides.GlobalStyles{BodyColor: "#e5e7eb"}
	light := Build(g, Theme{}).String()
	dark := Build(g, Theme{Dark: true}).String()

	assert.NotContains(t, light, ".text-gray-300")
	assert.Contains(t, dark, ".text-gray-300")
}

func TestAddHover(t *testing.T) {
	s := Build(overrides.GlobalStyles{}, Theme{})
	s.AddHover("", map[string]string{"button-2": "#16a34a", "button-0": "#dc2626"})

	assert.Equal(t,
		`[data-pv-id="button-0"]:hover { background-color: #dc2626 !important }`+"\n"+
			`[data-pv-id="button-2"]:hover { background-color: #16a34a !important }`,
		s.String())
	assert.NotEmpty(t, s.Minified())
}

func TestSlotString(t *testing.T) {
	assert.Equal(t, "buttonTextColor", ButtonTextColor.String())
	assert.Equal(t, "Slot(42)", Slot(42).String())
}

func TestBuild_DropsInvalidValues(t *testing.T) {
	sheet := Build(overrides.GlobalStyles{
		PrimaryColor: "red}</style><script>alert(1)</script>",
		HeadingColor: "#0f172a",
		ButtonRadius: "#fff",
		ButtonColor:  "url(javascript:x)",
	}, Theme{})
	require.Equal(t, 1, sheet.Len())
	out := sheet.String()
	assert.Contains(t, out, "#0f172a")
	assert.NotContains(t, out, "</style>")
	assert.NotContains(t, out, "javascript")

	sheet = &Sheet{}
	sheet.AddHover("", map[string]string{"button-0": "#16a34a", "button-1": "x}</style>"})
	require.Equal(t, 1, sheet.Len())
	assert.Contains(t, sheet.String(), "button-0")
}
