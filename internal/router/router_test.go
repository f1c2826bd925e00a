package router

import (
	"testing"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/livefir/editpreview/internal/dom"
	"github.com/livefir/editpreview/internal/tagger"
)

const page = `<!DOCTYPE html><html><body><main id="root">
<a id="logo-link" href="/"><img id="logo" src="/logo.png"></a>
<img id="team" src="/team.jpg">
<p id="intro">Wij komen bij u thuis <i id="icon" class="fa-home"></i></p>
<a id="cta" class="btn" href="#contact"><span id="cta-label">Maak een afspraak</span></a>
<button id="plain-btn">Verstuur</button>
<div id="hero" style="background-image: url('/hero.jpg')"><div id="hero-inner"></div></div>
<div id="empty"></div>
<a id="text-link" href="/over">Over ons</a>
</main></body></html>`

func setup(t *testing.T) (*html.Node, func(id string) *html.Node) {
	t.Helper()
	doc, err := dom.Parse(page)
	if err != nil {
		t.Fatal(err)
	}
	root := dom.Find(doc, atom.Main)
	tagger.Run(root, nil, tagger.NewBaselines(), tagger.Options{})
	get := func(id string) *html.Node {
		var found *html.Node
		dom.Walk(root, func(n *html.Node) bool {
			if v, _ := dom.Attr(n, "id"); v == id {
				found = n
			}
			return found == nil
		})
		if found == nil {
			t.Fatalf("no element #%s", id)
		}
		return found
	}
	return root, get
}

func TestClassify(t *testing.T) {
	root, get := setup(t)

	tests := []struct {
		clicked  string
		kind     Kind
		target   string
		preventN bool
	}{
		{"logo", LinkedImage, "logo", true},
		{"logo-link", LinkedImage, "logo", true},
		{"team", Image, "team", false},
		{"intro", Text, "intro", false},
		{"icon", None, "", false},
		{"cta-label", Text, "cta-label", true},
		{"cta", Button, "cta", true},
		{"plain-btn", Button, "plain-btn", false},
		{"hero", BackgroundImage, "hero", false},
		{"hero-inner", BackgroundImage, "hero", false},
		{"empty", None, "", false},
		{"text-link", Text, "text-link", true},
	}
	for _, tt := range tests {
		t.Run(tt.clicked, func(t *testing.T) {
			got := Classify(root, get(tt.clicked))
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.PreventNavigation != tt.preventN {
				t.Errorf("PreventNavigation = %v, want %v", got.PreventNavigation, tt.preventN)
			}
			if tt.target == "" {
				if got.Node != nil {
					t.Errorf("Node = %v, want nil", got.Node.Data)
				}
				return
			}
			if got.Node != get(tt.target) {
				t.Errorf("Node = %v, want #%s", got.Node, tt.target)
			}
			if got.Identity == "" {
				t.Error("Identity is empty")
			}
		})
	}
}

func TestClassifyOutsideRoot(t *testing.T) {
	root, _ := setup(t)
	other := &html.Node{Type: html.ElementNode, Data: "p", DataAtom: atom.P}
	if got := Classify(root, other); got.Kind != None {
		t.Errorf("Kind = %v, want none", got.Kind)
	}
	if got := Classify(root, nil); got.Kind != None {
		t.Errorf("Kind = %v, want none", got.Kind)
	}
}

func TestKind(t *testing.T) {
	for _, k := range []Kind{LinkedImage, Image, BackgroundImage} {
		if !k.IsImage() {
			t.Errorf("%v.IsImage() = false", k)
		}
	}
	if Text.IsImage() || Button.IsImage() {
		t.Error("text and button are not image affordances")
	}
	if Button.String() != "button" || None.String() != "none" {
		t.Errorf("String() = %q, %q", Button.String(), None.String())
	}
}
