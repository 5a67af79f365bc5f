package notespatch

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

const sampleNotes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\r\n" +
	`<p:notes xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">` +
	`<p:cSld><p:spTree>` +
	`<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr/>` +
	`<p:sp><p:nvSpPr><p:cNvPr id="2" name="Slide Image Placeholder 1"/><p:cNvSpPr><a:spLocks noGrp="1" noRot="1" noChangeAspect="1"/></p:cNvSpPr><p:nvPr><p:ph type="sldImg"/></p:nvPr></p:nvSpPr><p:spPr/></p:sp>` +
	`<p:sp><p:nvSpPr><p:cNvPr id="3" name="Notes Placeholder 2"/><p:cNvSpPr><a:spLocks noGrp="1"/></p:cNvSpPr><p:nvPr><p:ph type="body" idx="1"/></p:nvPr></p:nvSpPr><p:spPr/>` +
	`<p:txBody><a:bodyPr/><a:lstStyle/><a:p><a:r><a:rPr lang="en-US" dirty="0"/><a:t>old notes</a:t></a:r><a:endParaRPr lang="en-US"/></a:p></p:txBody>` +
	`</p:sp>` +
	`</p:spTree></p:cSld>` +
	`<p:clrMapOvr><a:overrideClrMapping bg1="lt1" tx1="dk1" bg2="lt2" tx2="dk2" accent1="accent1" accent2="accent2" accent3="accent3" accent4="accent4" accent5="accent5" accent6="accent6" hlink="hlink" folHlink="folHlink"/></p:clrMapOvr>` +
	`</p:notes>`

func TestSetTextReplacesBody(t *testing.T) {
	out, err := SetText([]byte(sampleNotes), "hello world")
	if err != nil {
		t.Fatal(err)
	}

	got, err := ExtractText(out)
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello world" {
		t.Fatalf("readback: got %q, want %q", got, "hello world")
	}
	if !strings.Contains(string(out), `<a:t xml:space="preserve">hello world</a:t>`) {
		t.Fatalf("run not found in output:\n%s", out)
	}

	// Every byte outside the paragraph region must survive verbatim.
	i := strings.Index(sampleNotes, "<a:p>")
	j := strings.Index(sampleNotes, "</p:txBody>")
	if !bytes.HasPrefix(out, []byte(sampleNotes[:i])) {
		t.Fatal("bytes before the paragraph region were modified")
	}
	if !bytes.HasSuffix(out, []byte(sampleNotes[j:])) {
		t.Fatal("bytes after the paragraph region were modified")
	}
}

func TestSetTextSingleParagraphSingleRun(t *testing.T) {
	out, err := SetText([]byte(sampleNotes), "line1\nline2\nline3")
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(out), "<a:p>"); n != 1 {
		t.Fatalf("paragraph count: got %d, want 1", n)
	}
	if n := strings.Count(string(out), "<a:r>"); n != 1 {
		t.Fatalf("run count: got %d, want 1", n)
	}
	got, _ := ExtractText(out)
	if got != "line1\nline2\nline3" {
		t.Fatalf("readback: got %q", got)
	}
}

func TestSetTextEmpty(t *testing.T) {
	out, err := SetText([]byte(sampleNotes), "")
	if err != nil {
		t.Fatal(err)
	}
	got, err := ExtractText(out)
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Fatalf("readback of empty note: got %q", got)
	}
}

func TestSetTextEscapes(t *testing.T) {
	const text = `profit & loss <q3> "draft"`
	out, err := SetText([]byte(sampleNotes), text)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "profit &amp; loss &lt;q3&gt;") {
		t.Fatalf("markup not escaped:\n%s", out)
	}
	got, _ := ExtractText(out)
	if got != text {
		t.Fatalf("readback: got %q, want %q", got, text)
	}
}

func TestSetTextMultibyte(t *testing.T) {
	const text = "café / 日本語のメモ 🎤"
	out, err := SetText([]byte(sampleNotes), text)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := ExtractText(out)
	if got != text {
		t.Fatalf("readback: got %q, want %q", got, text)
	}
}

func TestSetTextIdempotent(t *testing.T) {
	once, err := SetText([]byte(sampleNotes), "stable")
	if err != nil {
		t.Fatal(err)
	}
	twice, err := SetText(once, "stable")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(once, twice) {
		t.Fatal("second application changed bytes")
	}
}

func TestSetTextNoBody(t *testing.T) {
	const noBody = `<?xml version="1.0"?>` +
		`<p:notes xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">` +
		`<p:cSld><p:spTree>` +
		`<p:sp><p:nvSpPr><p:cNvPr id="2" name=""/><p:cNvSpPr/><p:nvPr><p:ph type="sldImg"/></p:nvPr></p:nvSpPr><p:spPr/></p:sp>` +
		`</p:spTree></p:cSld></p:notes>`
	_, err := SetText([]byte(noBody), "x")
	if !errors.Is(err, ErrNoTextBody) {
		t.Fatalf("error: got %v, want ErrNoTextBody", err)
	}
}

func TestSetTextMalformed(t *testing.T) {
	_, err := SetText([]byte(`<p:notes xmlns:p="u"><p:cSld>`), "x")
	if err == nil {
		t.Fatal("no error for truncated XML")
	}
	if errors.Is(err, ErrNoTextBody) {
		t.Fatal("malformed part reported as missing body")
	}
}

func TestSetTextFallbackFirstTextBody(t *testing.T) {
	// No body placeholder: the first shape with a text body is patched.
	const plain = `<p:notes xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">` +
		`<p:cSld><p:spTree>` +
		`<p:sp><p:nvSpPr><p:cNvPr id="2" name=""/><p:cNvSpPr/><p:nvPr/></p:nvSpPr><p:spPr/>` +
		`<p:txBody><a:bodyPr/><a:p><a:r><a:t>free text</a:t></a:r></a:p></p:txBody></p:sp>` +
		`</p:spTree></p:cSld></p:notes>`
	out, err := SetText([]byte(plain), "patched")
	if err != nil {
		t.Fatal(err)
	}
	got, _ := ExtractText(out)
	if got != "patched" {
		t.Fatalf("readback: got %q", got)
	}
}

func TestSetTextCustomPrefix(t *testing.T) {
	doc := strings.NewReplacer("a:", "d:", "xmlns:a=", "xmlns:d=").Replace(sampleNotes)
	out, err := SetText([]byte(doc), "prefixed")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `<d:p><d:r><d:t xml:space="preserve">prefixed</d:t></d:r></d:p>`) {
		t.Fatalf("drawingml prefix not honored:\n%s", out)
	}
}

func TestSetTextUnboundPrefix(t *testing.T) {
	// The part never binds the drawingml namespace, so the fragment must
	// declare it locally.
	const bare = `<p:notes xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">` +
		`<p:cSld><p:spTree>` +
		`<p:sp><p:nvSpPr><p:cNvPr id="2" name=""/><p:cNvSpPr/><p:nvPr><p:ph type="body"/></p:nvPr></p:nvSpPr><p:spPr/>` +
		`<p:txBody></p:txBody></p:sp>` +
		`</p:spTree></p:cSld></p:notes>`
	out, err := SetText([]byte(bare), "declared")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `<a:p xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">`) {
		t.Fatalf("local namespace declaration missing:\n%s", out)
	}
	got, err := ExtractText(out)
	if err != nil {
		t.Fatal(err)
	}
	if got != "declared" {
		t.Fatalf("readback: got %q", got)
	}
}

func TestExtractTextBreaksAndParagraphs(t *testing.T) {
	const doc = `<p:notes xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">` +
		`<p:cSld><p:spTree>` +
		`<p:sp><p:nvSpPr><p:cNvPr id="3" name=""/><p:cNvSpPr/><p:nvPr><p:ph type="body"/></p:nvPr></p:nvSpPr><p:spPr/>` +
		`<p:txBody><a:bodyPr/>` +
		`<a:p><a:r><a:t>first</a:t></a:r><a:br/><a:r><a:t>second</a:t></a:r></a:p>` +
		`<a:p><a:r><a:t>third</a:t></a:r></a:p>` +
		`</p:txBody></p:sp>` +
		`</p:spTree></p:cSld></p:notes>`
	got, err := ExtractText([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if got != "first\nsecond\nthird" {
		t.Fatalf("text: got %q", got)
	}
}

func TestExtractTextNoBody(t *testing.T) {
	const doc = `<p:notes xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"><p:cSld><p:spTree/></p:cSld></p:notes>`
	got, err := ExtractText([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Fatalf("text: got %q, want empty", got)
	}
}

func TestShapes(t *testing.T) {
	shapes, err := Shapes([]byte(sampleNotes))
	if err != nil {
		t.Fatal(err)
	}
	if len(shapes) != 2 {
		t.Fatalf("shape count: got %d, want 2", len(shapes))
	}
	if shapes[0].PhType != "sldImg" || shapes[0].HasText {
		t.Fatalf("shape 0: %+v", shapes[0])
	}
	if shapes[1].PhType != "body" || !shapes[1].HasText {
		t.Fatalf("shape 1: %+v", shapes[1])
	}
	if shapes[1].Text() != "old notes" {
		t.Fatalf("shape 1 text: got %q", shapes[1].Text())
	}
}

func TestScaffoldRoundTrip(t *testing.T) {
	for _, text := range []string{"", "speaker cue", "line1\nline2", "ünïcode 🎯"} {
		part := Scaffold(text)
		got, err := ExtractText(part)
		if err != nil {
			t.Fatalf("Scaffold(%q): %v", text, err)
		}
		if got != text {
			t.Fatalf("Scaffold(%q) readback: got %q", text, got)
		}
	}
}

func TestScaffoldPatchable(t *testing.T) {
	part := Scaffold("initial")
	out, err := SetText(part, "replaced")
	if err != nil {
		t.Fatal(err)
	}
	got, _ := ExtractText(out)
	if got != "replaced" {
		t.Fatalf("readback: got %q", got)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"a\r\nb", "a\nb"},
		{"a\rb", "a\nb"},
		{"a\x00b\x07c", "abc"},
		{"tab\tkeeps", "tab\tkeeps"},
		{"mix\r\n\x1fend", "mix\nend"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}
