package editor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/souffleur/kit"
)

var testMCPImpl = &mcp.Implementation{Name: "souffleur-test", Version: "0.1.0"}

func mcpSession(t *testing.T, svc *Service, mw ...kit.Middleware) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	svc.RegisterMCP(srv, mw...)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCallTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text
}

func decodeResult(t *testing.T, text string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(text), v); err != nil {
		t.Fatalf("unmarshal %q: %v", text, err)
	}
}

type envError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Slide   int    `json:"slide_number"`
}

// --- read_notes ---

func TestMCP_ReadNotes(t *testing.T) {
	svc := newService(t, nil)
	p := threeSlideDeck(t)
	session := mcpSession(t, svc)

	text := mcpCallTool(t, session, "read_notes", map[string]any{"path": p, "slide_number": 1})

	var resp struct {
		Success bool   `json:"success"`
		Slide   int    `json:"slide_number"`
		Text    string `json:"notes_text"`
	}
	decodeResult(t, text, &resp)
	if !resp.Success || resp.Slide != 1 || resp.Text != "hello from slide one" {
		t.Errorf("read_notes = %+v", resp)
	}
}

func TestMCP_ReadNotes_AllSlides(t *testing.T) {
	svc := newService(t, nil)
	p := threeSlideDeck(t)
	session := mcpSession(t, svc)

	text := mcpCallTool(t, session, "read_notes", map[string]any{"path": p})

	var resp struct {
		Success bool         `json:"success"`
		Total   int          `json:"total_slides"`
		Slides  []SlideNotes `json:"slides"`
	}
	decodeResult(t, text, &resp)
	if !resp.Success || resp.Total != 3 || len(resp.Slides) != 3 {
		t.Fatalf("read_notes all = %+v", resp)
	}
	if resp.Slides[2].Slide != 3 || resp.Slides[2].Text != "" {
		t.Errorf("bare slide = %+v", resp.Slides[2])
	}
}

func TestMCP_ReadNotes_NotFound(t *testing.T) {
	svc := newService(t, nil)
	p := threeSlideDeck(t)
	session := mcpSession(t, svc)

	text := mcpCallTool(t, session, "read_notes", map[string]any{"path": p, "slide_number": 99})

	var resp struct {
		Success bool      `json:"success"`
		Error   *envError `json:"error"`
	}
	decodeResult(t, text, &resp)
	if resp.Success || resp.Error == nil {
		t.Fatalf("expected error envelope, got %s", text)
	}
	if resp.Error.Kind != KindNotFound || resp.Error.Slide != 99 {
		t.Errorf("error = %+v", resp.Error)
	}
}

// --- read_notes_batch ---

func TestMCP_ReadNotesBatch(t *testing.T) {
	svc := newService(t, nil)
	p := threeSlideDeck(t)
	session := mcpSession(t, svc)

	text := mcpCallTool(t, session, "read_notes_batch", map[string]any{"path": p, "slide_range": "1-2"})

	var resp struct {
		Success bool         `json:"success"`
		Total   int          `json:"total_slides"`
		Slides  []SlideNotes `json:"slides"`
	}
	decodeResult(t, text, &resp)
	if !resp.Success || resp.Total != 2 {
		t.Fatalf("batch = %+v", resp)
	}
	if resp.Slides[1].Text != "second slide notes" {
		t.Errorf("slides = %+v", resp.Slides)
	}
}

func TestMCP_ReadNotesBatch_BothSelectors(t *testing.T) {
	svc := newService(t, nil)
	p := threeSlideDeck(t)
	session := mcpSession(t, svc)

	text := mcpCallTool(t, session, "read_notes_batch", map[string]any{
		"path":          p,
		"slide_numbers": []int{1},
		"slide_range":   "1-2",
	})

	var resp struct {
		Success bool      `json:"success"`
		Error   *envError `json:"error"`
	}
	decodeResult(t, text, &resp)
	if resp.Success || resp.Error == nil || resp.Error.Kind != KindValidation {
		t.Errorf("both selectors: %s", text)
	}
}

// --- update_notes ---

func TestMCP_UpdateNotes(t *testing.T) {
	svc := newService(t, nil)
	p := threeSlideDeck(t)
	session := mcpSession(t, svc)

	text := mcpCallTool(t, session, "update_notes", map[string]any{
		"path":         p,
		"slide_number": 2,
		"notes_text":   "updated over the wire",
	})

	var resp struct {
		Success bool   `json:"success"`
		Path    string `json:"path"`
		Slide   int    `json:"slide_number"`
		InPlace bool   `json:"in_place"`
	}
	decodeResult(t, text, &resp)
	if !resp.Success || !resp.InPlace || resp.Slide != 2 {
		t.Fatalf("update_notes = %+v", resp)
	}

	notes, _, err := svc.ReadNotes(context.Background(), p, 2)
	if err != nil {
		t.Fatal(err)
	}
	if notes.Text != "updated over the wire" {
		t.Errorf("reread = %q", notes.Text)
	}
}

func TestMCP_UpdateNotes_OptionConflicts(t *testing.T) {
	svc := newService(t, nil)
	p := threeSlideDeck(t)
	session := mcpSession(t, svc)

	tests := []struct {
		name string
		args map[string]any
	}{
		{"in_place with output_path", map[string]any{
			"path": p, "slide_number": 1, "notes_text": "x",
			"in_place": true, "output_path": p + ".out.pptx",
		}},
		{"in_place false without output_path", map[string]any{
			"path": p, "slide_number": 1, "notes_text": "x",
			"in_place": false,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := mcpCallTool(t, session, "update_notes", tt.args)
			var resp struct {
				Success bool      `json:"success"`
				Error   *envError `json:"error"`
			}
			decodeResult(t, text, &resp)
			if resp.Success || resp.Error == nil || resp.Error.Kind != KindValidation {
				t.Errorf("envelope: %s", text)
			}
		})
	}
}

// --- update_notes_batch ---

func TestMCP_UpdateNotesBatch(t *testing.T) {
	svc := newService(t, nil)
	p := threeSlideDeck(t)
	session := mcpSession(t, svc)

	text := mcpCallTool(t, session, "update_notes_batch", map[string]any{
		"path": p,
		"updates": []map[string]any{
			{"slide_number": 1, "notes_text": "one"},
			{"slide_number": 2, "notes_text": "two"},
		},
	})

	var resp struct {
		Success bool  `json:"success"`
		Updated int   `json:"updated_slides"`
		Slides  []int `json:"slides"`
		InPlace bool  `json:"in_place"`
	}
	decodeResult(t, text, &resp)
	if !resp.Success || resp.Updated != 2 || len(resp.Slides) != 2 || !resp.InPlace {
		t.Errorf("batch update = %+v", resp)
	}
}

// --- format_notes_structure ---

func TestMCP_FormatNotes(t *testing.T) {
	svc := newService(t, nil)
	session := mcpSession(t, svc)

	text := mcpCallTool(t, session, "format_notes_structure", map[string]any{
		"short_text":    "brief",
		"original_text": "full",
	})

	var resp struct {
		Success   bool   `json:"success"`
		Formatted string `json:"formatted_text"`
		Type      string `json:"format_type"`
	}
	decodeResult(t, text, &resp)
	want := "- Short version:\nbrief\n\n- Original:\nfull"
	if !resp.Success || resp.Formatted != want || resp.Type != FormatShortOriginal {
		t.Errorf("format = %+v", resp)
	}
}

// --- process_notes_workflow ---

func TestMCP_Workflow(t *testing.T) {
	svc := newService(t, nil)
	p := threeSlideDeck(t)
	session := mcpSession(t, svc)

	text := mcpCallTool(t, session, "process_notes_workflow", map[string]any{
		"path": p,
		"notes_data": []map[string]any{
			{"slide_number": 1, "short_text": "s1", "original_text": "o1"},
			{"slide_number": 2, "short_text": "s2", "original_text": "o2"},
		},
	})

	var resp struct {
		Success   bool   `json:"success"`
		Workflow  string `json:"workflow"`
		Formatted int    `json:"formatted_slides"`
		Updated   int    `json:"updated_slides"`
	}
	decodeResult(t, text, &resp)
	if !resp.Success || resp.Workflow != "process_notes_workflow" || resp.Formatted != 2 || resp.Updated != 2 {
		t.Errorf("workflow = %+v", resp)
	}

	notes, _, err := svc.ReadNotes(context.Background(), p, 1)
	if err != nil {
		t.Fatal(err)
	}
	if notes.Text != "- Short version:\ns1\n\n- Original:\no1" {
		t.Errorf("applied notes = %q", notes.Text)
	}
}

// --- read_presentation_info ---

func TestMCP_PresentationInfo(t *testing.T) {
	svc := newService(t, nil)
	p := threeSlideDeck(t)
	session := mcpSession(t, svc)

	text := mcpCallTool(t, session, "read_presentation_info", map[string]any{"path": p})

	var resp struct {
		Success bool   `json:"success"`
		Name    string `json:"file_name"`
		Count   int    `json:"slide_count"`
		Visible int    `json:"visible_slides"`
		Hidden  int    `json:"hidden_slides"`
		Width   int64  `json:"slide_width_emu"`
	}
	decodeResult(t, text, &resp)
	if !resp.Success || resp.Name != "deck.pptx" || resp.Count != 3 || resp.Visible != 2 || resp.Hidden != 1 {
		t.Errorf("info = %+v", resp)
	}
	if resp.Width != 12192000 {
		t.Errorf("slide width = %d", resp.Width)
	}
}

// --- read_slide_text ---

func TestMCP_SlideText(t *testing.T) {
	svc := newService(t, nil)
	p := threeSlideDeck(t)
	session := mcpSession(t, svc)

	text := mcpCallTool(t, session, "read_slide_text", map[string]any{"path": p, "slide_number": 1})

	var resp struct {
		Success bool     `json:"success"`
		Title   string   `json:"title"`
		Texts   []string `json:"texts"`
	}
	decodeResult(t, text, &resp)
	if !resp.Success || resp.Title != "Opening" || len(resp.Texts) == 0 {
		t.Errorf("slide text = %+v", resp)
	}
}

// --- read_slides_metadata ---

func TestMCP_SlidesMetadata(t *testing.T) {
	svc := newService(t, nil)
	p := threeSlideDeck(t)
	session := mcpSession(t, svc)

	text := mcpCallTool(t, session, "read_slides_metadata", map[string]any{"path": p, "include_hidden": false})

	var resp struct {
		Success bool        `json:"success"`
		Count   int         `json:"slide_count"`
		Slides  []SlideMeta `json:"slides"`
	}
	decodeResult(t, text, &resp)
	if !resp.Success || resp.Count != 2 || len(resp.Slides) != 2 {
		t.Fatalf("metadata = %+v", resp)
	}
	for _, m := range resp.Slides {
		if m.Hidden {
			t.Errorf("hidden slide %d in visible-only listing", m.Slide)
		}
	}
}

// --- set_slide_visibility ---

func TestMCP_SetSlideVisibility(t *testing.T) {
	svc := newService(t, nil)
	p := threeSlideDeck(t)
	session := mcpSession(t, svc)

	text := mcpCallTool(t, session, "set_slide_visibility", map[string]any{
		"path": p, "slide_number": 3, "hidden": false,
	})

	var resp struct {
		Success bool `json:"success"`
		Hidden  bool `json:"hidden"`
	}
	decodeResult(t, text, &resp)
	if !resp.Success || resp.Hidden {
		t.Fatalf("visibility = %+v", resp)
	}

	info, err := svc.Info(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if info.HiddenSlides != 0 {
		t.Errorf("hidden slides after unhide = %d", info.HiddenSlides)
	}
}

// --- health_check ---

func TestMCP_HealthCheck(t *testing.T) {
	svc := newService(t, nil)
	session := mcpSession(t, svc)

	text := mcpCallTool(t, session, "health_check", map[string]any{})

	var resp struct {
		Success bool   `json:"success"`
		Status  string `json:"status"`
		Audit   bool   `json:"audit_enabled"`
	}
	decodeResult(t, text, &resp)
	if !resp.Success || resp.Status != "healthy" || resp.Audit {
		t.Errorf("health = %+v", resp)
	}
}

// --- middleware wiring ---

func TestMCP_RateLimited(t *testing.T) {
	svc := newService(t, nil)
	p := threeSlideDeck(t)
	rl := kit.NewRateLimiter(1, time.Minute)
	session := mcpSession(t, svc, rl.Middleware())

	first := mcpCallTool(t, session, "read_notes", map[string]any{"path": p, "slide_number": 1})
	var ok struct {
		Success bool `json:"success"`
	}
	decodeResult(t, first, &ok)
	if !ok.Success {
		t.Fatalf("first call: %s", first)
	}

	second := mcpCallTool(t, session, "read_notes", map[string]any{"path": p, "slide_number": 1})
	var resp struct {
		Success bool      `json:"success"`
		Error   *envError `json:"error"`
	}
	decodeResult(t, second, &resp)
	if resp.Success || resp.Error == nil || resp.Error.Kind != KindRateLimited {
		t.Errorf("rate limited envelope: %s", second)
	}

	// Other tools keep their own budget.
	third := mcpCallTool(t, session, "health_check", map[string]any{})
	decodeResult(t, third, &ok)
	if !ok.Success {
		t.Errorf("health_check hit by read_notes budget: %s", third)
	}
}

func TestMCP_ToolList(t *testing.T) {
	svc := newService(t, nil)
	session := mcpSession(t, svc)

	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{
		"read_notes":             true,
		"read_notes_batch":       true,
		"update_notes":           true,
		"update_notes_batch":     true,
		"format_notes_structure": true,
		"process_notes_workflow": true,
		"read_presentation_info": true,
		"read_slide_text":        true,
		"read_slides_metadata":   true,
		"set_slide_visibility":   true,
		"health_check":           true,
	}
	for _, tool := range res.Tools {
		delete(want, tool.Name)
	}
	for name := range want {
		t.Errorf("tool not registered: %s", name)
	}
}
