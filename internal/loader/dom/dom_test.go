package dom

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <script type="text/plain" data-consent="analytics" data-src="https://cdn.example/analytics.js"></script>
  <script type="text/plain" data-consent="marketing">window.trackCampaign();</script>
  <script src="https://cdn.example/app.js"></script>
</head>
<body>
  <img data-consent="marketing" data-src="https://px.example/p.gif" alt="">
  <iframe data-consent="media" data-src="https://video.example/embed/42"></iframe>
  <img src="/logo.png" alt="logo">
  <iframe data-src="https://maps.example/widget"></iframe>
</body>
</html>`

func parse(t *testing.T, page string) *Document {
	t.Helper()
	doc, err := ParseDocument(strings.NewReader(page))
	require.NoError(t, err)
	return doc
}

func render(t *testing.T, doc *Document) string {
	t.Helper()
	var sb strings.Builder
	require.NoError(t, doc.Render(&sb))
	return sb.String()
}

func TestGatedElements_CollectsOnlyContractMatches(t *testing.T) {
	doc := parse(t, samplePage)

	gated := doc.GatedElements()
	require.Len(t, gated, 4)

	// Document order: the two placeholders, then the pixel, then the iframe.
	tags := make([]string, len(gated))
	for i, el := range gated {
		tags[i] = el.TagName()
	}
	assert.Equal(t, []string{"script", "script", "img", "iframe"}, tags)

	// The executing script, the untagged img, and the untagged iframe are
	// not gated.
	for _, el := range gated {
		purpose, ok := el.Attr(AttrPurpose)
		assert.True(t, ok)
		assert.NotEmpty(t, purpose)
	}
}

func TestGatedElements_IgnoresEmptyPurposeTag(t *testing.T) {
	doc := parse(t, `<html><body><img data-consent="" data-src="https://px.example/p.gif"></body></html>`)
	assert.Empty(t, doc.GatedElements())
}

func TestGatedElements_ScriptWithoutPlaceholderTypeNotGated(t *testing.T) {
	// An already-executable script cannot be gated even if tagged.
	doc := parse(t, `<html><head><script data-consent="analytics" src="https://x/a.js"></script></head></html>`)
	assert.Empty(t, doc.GatedElements())
}

func TestActivateScript_ExternalSource(t *testing.T) {
	doc := parse(t, samplePage)
	gated := doc.GatedElements()

	el := gated[0]
	src, _ := el.Attr(AttrDeferredSrc)
	require.NoError(t, ActivateScript(el, src, ""))

	out := render(t, doc)
	assert.Contains(t, out, `<script src="https://cdn.example/analytics.js"></script>`)
	assert.NotContains(t, out, `data-src="https://cdn.example/analytics.js"`)
}

func TestActivateScript_InlineBody(t *testing.T) {
	doc := parse(t, samplePage)
	gated := doc.GatedElements()

	el := gated[1]
	require.NoError(t, ActivateScript(el, "", el.Text()))

	out := render(t, doc)
	assert.Contains(t, out, `<script>window.trackCampaign();</script>`)
	// The inert placeholder is gone.
	assert.NotContains(t, out, `type="text/plain" data-consent="marketing"`)
}

func TestActivateScript_KeepsUnrelatedAttributes(t *testing.T) {
	doc := parse(t, `<html><head><script type="text/plain" data-consent="analytics" data-src="https://x/a.js" id="ga" async></script></head></html>`)
	el := doc.GatedElements()[0]

	require.NoError(t, ActivateScript(el, "https://x/a.js", ""))

	out := render(t, doc)
	assert.Contains(t, out, `id="ga"`)
	assert.Contains(t, out, `async`)
	assert.NotContains(t, out, "text/plain")
	assert.NotContains(t, out, AttrPurpose)
}

func TestActivateScript_RejectsForeignElement(t *testing.T) {
	err := ActivateScript(stubElement{}, "https://x/a.js", "")
	require.Error(t, err)
}

func TestActivateEmbed_PromotesDeferredSource(t *testing.T) {
	doc := parse(t, samplePage)
	gated := doc.GatedElements()

	require.NoError(t, ActivateEmbed(gated[2]))
	require.NoError(t, ActivateEmbed(gated[3]))

	out := render(t, doc)
	assert.Contains(t, out, ` src="https://px.example/p.gif"`)
	assert.Contains(t, out, `<iframe src="https://video.example/embed/42">`)
	assert.NotContains(t, out, `data-src="https://px.example/p.gif"`)
	assert.NotContains(t, out, `data-src="https://video.example/embed/42"`)
	assert.NotContains(t, out, `data-consent="media"`)
}

func TestActivateEmbed_MissingDeferredSource(t *testing.T) {
	doc := parse(t, `<html><body><img data-consent="x" data-src="u"></body></html>`)
	el := doc.GatedElements()[0]
	el.RemoveAttr(AttrDeferredSrc)

	require.Error(t, ActivateEmbed(el))
}

func TestCreateElement_AppendsToBody(t *testing.T) {
	doc := NewDocument()

	el := doc.CreateElement("IMG")
	el.SetAttr("src", "https://px.example/p.gif")

	assert.Equal(t, "img", el.TagName())
	assert.Contains(t, render(t, doc), `<img src="https://px.example/p.gif"/>`)
}

func TestInjectHeadScript_RunsFirst(t *testing.T) {
	doc := parse(t, samplePage)
	doc.InjectHeadScript("window.assentBoot();")

	out := render(t, doc)
	boot := strings.Index(out, "window.assentBoot();")
	app := strings.Index(out, "app.js")
	require.Greater(t, boot, 0)
	require.Greater(t, app, 0)
	assert.Less(t, boot, app, "bootstrap must precede page scripts")
}

func TestElement_AttrHelpers(t *testing.T) {
	doc := NewDocument()
	el := doc.CreateElement("script")

	_, ok := el.Attr("src")
	assert.False(t, ok)

	el.SetAttr("src", "a")
	el.SetAttr("src", "b") // overwrite, not duplicate
	got, ok := el.Attr("src")
	assert.True(t, ok)
	assert.Equal(t, "b", got)

	el.RemoveAttr("src")
	_, ok = el.Attr("src")
	assert.False(t, ok)
}

// stubElement is a non-document element used to probe type guards.
type stubElement struct{}

func (stubElement) TagName() string { return "stub" }

func (stubElement) Attr(string) (string, bool) { return "", false }

func (stubElement) SetAttr(name, value string) {}

func (stubElement) RemoveAttr(string) {}

func (stubElement) Text() string { return "" }
