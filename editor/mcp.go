package editor

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/souffleur/kit"
)

// RegisterMCP registers the notes tools on an MCP server. Middlewares
// wrap every endpoint, first one outermost; the response envelope sits
// outside the chain, so middlewares observe real errors before they are
// folded into {success:false, error:{...}}.
func (s *Service) RegisterMCP(srv *mcp.Server, mw ...kit.Middleware) {
	s.registerReadNotes(srv, mw)
	s.registerReadNotesBatch(srv, mw)
	s.registerUpdateNotes(srv, mw)
	s.registerUpdateNotesBatch(srv, mw)
	s.registerFormatNotes(srv, mw)
	s.registerWorkflow(srv, mw)
	s.registerInfo(srv, mw)
	s.registerSlideText(srv, mw)
	s.registerSlidesMetadata(srv, mw)
	s.registerVisibility(srv, mw)
	s.registerHealth(srv, mw)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// wrap applies the middleware chain and the response envelope.
func wrap(ep kit.Endpoint, mw []kit.Middleware) kit.Endpoint {
	if len(mw) > 0 {
		ep = kit.Chain(mw[0], mw[1:]...)(ep)
	}
	return envelope(ep)
}

// envelope converts endpoint errors into {success:false, error:{...}}
// responses and marks successful map responses with success:true.
func envelope(next kit.Endpoint) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		resp, err := next(ctx, req)
		if err != nil {
			return errorBody(err), nil
		}
		out := map[string]any{"success": true}
		if m, ok := resp.(map[string]any); ok {
			for k, v := range m {
				out[k] = v
			}
		}
		return out, nil
	}
}

func errorBody(err error) map[string]any {
	kind := Kind(err)
	if errors.Is(err, kit.ErrRateLimited) {
		kind = KindRateLimited
	}
	e := map[string]any{"kind": kind, "message": err.Error()}
	if slide := SlideOf(err); slide != 0 {
		e["slide_number"] = slide
	}
	return map[string]any{"success": false, "error": e}
}

// resolveOptions reconciles the in_place flag with output_path. The two
// answer the same question, so a contradiction is a validation error
// rather than a guess about where to write.
func resolveOptions(inPlace *bool, outputPath string) (Options, error) {
	if inPlace != nil {
		if *inPlace && outputPath != "" {
			return Options{}, validationf("in_place and output_path are mutually exclusive")
		}
		if !*inPlace && outputPath == "" {
			return Options{}, validationf("in_place=false requires output_path")
		}
	}
	return Options{OutputPath: outputPath}, nil
}

// --- read_notes ---

type readNotesReq struct {
	Path  string `json:"path"`
	Slide *int   `json:"slide_number,omitempty"`
}

func (s *Service) registerReadNotes(srv *mcp.Server, mw []kit.Middleware) {
	tool := &mcp.Tool{
		Name:        "read_notes",
		Description: "Read speaker notes from a presentation: one slide, or every slide when slide_number is omitted.",
		InputSchema: inputSchema(map[string]any{
			"path":         map[string]any{"type": "string", "description": "Presentation file path"},
			"slide_number": map[string]any{"type": "integer", "description": "Slide number (1-indexed)"},
		}, []string{"path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*readNotesReq)
		if r.Slide != nil {
			notes, _, err := s.ReadNotes(ctx, r.Path, *r.Slide)
			if err != nil {
				return nil, err
			}
			return map[string]any{"slide_number": notes.Slide, "notes_text": notes.Text}, nil
		}
		slides, _, err := s.ReadNotesBatch(ctx, r.Path, nil, "")
		if err != nil {
			return nil, err
		}
		return map[string]any{"total_slides": len(slides), "slides": slides}, nil
	}

	kit.RegisterMCPTool(srv, tool, wrap(endpoint, mw), decodeJSON[readNotesReq])
}

// --- read_notes_batch ---

type readBatchReq struct {
	Path    string `json:"path"`
	Numbers []int  `json:"slide_numbers,omitempty"`
	Range   string `json:"slide_range,omitempty"`
}

func (s *Service) registerReadNotesBatch(srv *mcp.Server, mw []kit.Middleware) {
	tool := &mcp.Tool{
		Name:        "read_notes_batch",
		Description: "Read speaker notes for a set of slides, given as a list of numbers or a range like \"3-7\". Neither selector means all slides.",
		InputSchema: inputSchema(map[string]any{
			"path":          map[string]any{"type": "string", "description": "Presentation file path"},
			"slide_numbers": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}, "description": "Slide numbers (1-indexed)"},
			"slide_range":   map[string]any{"type": "string", "description": "Inclusive range, e.g. \"2-5\""},
		}, []string{"path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*readBatchReq)
		slides, _, err := s.ReadNotesBatch(ctx, r.Path, r.Numbers, r.Range)
		if err != nil {
			return nil, err
		}
		return map[string]any{"total_slides": len(slides), "slides": slides}, nil
	}

	kit.RegisterMCPTool(srv, tool, wrap(endpoint, mw), decodeJSON[readBatchReq])
}

// --- update_notes ---

type updateNotesReq struct {
	Path    string `json:"path"`
	Slide   int    `json:"slide_number"`
	Text    string `json:"notes_text"`
	InPlace *bool  `json:"in_place,omitempty"`
	Output  string `json:"output_path,omitempty"`
}

func (s *Service) registerUpdateNotes(srv *mcp.Server, mw []kit.Middleware) {
	tool := &mcp.Tool{
		Name:        "update_notes",
		Description: "Replace one slide's speaker notes. The edit is committed atomically; only notes parts change. A slide without notes gets a notes part created.",
		InputSchema: inputSchema(map[string]any{
			"path":         map[string]any{"type": "string", "description": "Presentation file path"},
			"slide_number": map[string]any{"type": "integer", "description": "Slide number (1-indexed)"},
			"notes_text":   map[string]any{"type": "string", "description": "New notes text"},
			"in_place":     map[string]any{"type": "boolean", "description": "Edit the source file (default when output_path is omitted)"},
			"output_path":  map[string]any{"type": "string", "description": "Write the result here instead of in place"},
		}, []string{"path", "slide_number", "notes_text"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*updateNotesReq)
		opts, err := resolveOptions(r.InPlace, r.Output)
		if err != nil {
			return nil, err
		}
		res, err := s.UpdateNotes(ctx, r.Path, Update{Slide: r.Slide, Text: r.Text}, opts)
		if err != nil {
			return nil, err
		}
		out := map[string]any{"path": res.Path, "slide_number": r.Slide, "in_place": res.InPlace}
		if len(res.CreatedParts) > 0 {
			out["created_parts"] = res.CreatedParts
		}
		return out, nil
	}

	kit.RegisterMCPTool(srv, tool, wrap(endpoint, mw), decodeJSON[updateNotesReq])
}

// --- update_notes_batch ---

type updateBatchReq struct {
	Path    string   `json:"path"`
	Updates []Update `json:"updates"`
	InPlace *bool    `json:"in_place,omitempty"`
	Output  string   `json:"output_path,omitempty"`
}

func (s *Service) registerUpdateNotesBatch(srv *mcp.Server, mw []kit.Middleware) {
	tool := &mcp.Tool{
		Name:        "update_notes_batch",
		Description: "Replace speaker notes on several slides in one atomic commit. All updates apply or none do.",
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "Presentation file path"},
			"updates": map[string]any{
				"type":        "array",
				"description": "Notes updates, one per slide",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"slide_number": map[string]any{"type": "integer"},
						"notes_text":   map[string]any{"type": "string"},
					},
					"required": []string{"slide_number", "notes_text"},
				},
			},
			"in_place":    map[string]any{"type": "boolean", "description": "Edit the source file (default when output_path is omitted)"},
			"output_path": map[string]any{"type": "string", "description": "Write the result here instead of in place"},
		}, []string{"path", "updates"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*updateBatchReq)
		opts, err := resolveOptions(r.InPlace, r.Output)
		if err != nil {
			return nil, err
		}
		res, err := s.ApplyUpdates(ctx, r.Path, r.Updates, opts)
		if err != nil {
			return nil, err
		}
		return batchResult(res), nil
	}

	kit.RegisterMCPTool(srv, tool, wrap(endpoint, mw), decodeJSON[updateBatchReq])
}

func batchResult(res *Result) map[string]any {
	out := map[string]any{
		"path":           res.Path,
		"updated_slides": len(res.UpdatedSlides),
		"slides":         res.UpdatedSlides,
		"in_place":       res.InPlace,
	}
	if len(res.CreatedParts) > 0 {
		out["created_parts"] = res.CreatedParts
	}
	return out
}

// --- format_notes_structure ---

type formatReq struct {
	Short    string `json:"short_text"`
	Original string `json:"original_text"`
	Type     string `json:"format_type,omitempty"`
}

func (s *Service) registerFormatNotes(srv *mcp.Server, mw []kit.Middleware) {
	tool := &mcp.Tool{
		Name:        "format_notes_structure",
		Description: "Format a short and an original text into the structured notes template. Pure text shaping; no file is touched.",
		InputSchema: inputSchema(map[string]any{
			"short_text":    map[string]any{"type": "string", "description": "Condensed version of the notes"},
			"original_text": map[string]any{"type": "string", "description": "Full version of the notes"},
			"format_type":   map[string]any{"type": "string", "enum": []any{FormatShortOriginal, FormatSimple}, "description": "Template to apply (default short_original)"},
		}, []string{"short_text", "original_text"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*formatReq)
		text, err := FormatNotes(r.Short, r.Original, r.Type)
		if err != nil {
			return nil, err
		}
		ft := r.Type
		if ft == "" {
			ft = FormatShortOriginal
		}
		return map[string]any{"formatted_text": text, "format_type": ft}, nil
	}

	kit.RegisterMCPTool(srv, tool, wrap(endpoint, mw), decodeJSON[formatReq])
}

// --- process_notes_workflow ---

type workflowReq struct {
	Path    string      `json:"path"`
	Data    []NotesData `json:"notes_data"`
	InPlace *bool       `json:"in_place,omitempty"`
	Output  string      `json:"output_path,omitempty"`
}

func (s *Service) registerWorkflow(srv *mcp.Server, mw []kit.Middleware) {
	tool := &mcp.Tool{
		Name:        "process_notes_workflow",
		Description: "Apply pre-processed notes to multiple slides in one atomic commit: each entry's short and original text is formatted with the structured template first.",
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "Presentation file path"},
			"notes_data": map[string]any{
				"type":        "array",
				"description": "Pre-processed notes, one entry per slide",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"slide_number":  map[string]any{"type": "integer"},
						"short_text":    map[string]any{"type": "string"},
						"original_text": map[string]any{"type": "string"},
					},
					"required": []string{"slide_number", "short_text", "original_text"},
				},
			},
			"in_place":    map[string]any{"type": "boolean", "description": "Edit the source file (default when output_path is omitted)"},
			"output_path": map[string]any{"type": "string", "description": "Write the result here instead of in place"},
		}, []string{"path", "notes_data"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*workflowReq)
		opts, err := resolveOptions(r.InPlace, r.Output)
		if err != nil {
			return nil, err
		}
		res, err := s.ProcessNotesWorkflow(ctx, r.Path, r.Data, opts)
		if err != nil {
			return nil, err
		}
		out := batchResult(res)
		out["workflow"] = "process_notes_workflow"
		out["formatted_slides"] = len(r.Data)
		return out, nil
	}

	kit.RegisterMCPTool(srv, tool, wrap(endpoint, mw), decodeJSON[workflowReq])
}

// --- read_presentation_info ---

type pathReq struct {
	Path string `json:"path"`
}

func (s *Service) registerInfo(srv *mcp.Server, mw []kit.Middleware) {
	tool := &mcp.Tool{
		Name:        "read_presentation_info",
		Description: "Read deck-level metadata: slide count, visible and hidden counts, slide size.",
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "Presentation file path"},
		}, []string{"path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*pathReq)
		info, err := s.Info(ctx, r.Path)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"file_name":        info.FileName,
			"slide_count":      info.SlideCount,
			"visible_slides":   info.VisibleSlides,
			"hidden_slides":    info.HiddenSlides,
			"slide_width_emu":  info.SlideWidth,
			"slide_height_emu": info.SlideHeight,
		}, nil
	}

	kit.RegisterMCPTool(srv, tool, wrap(endpoint, mw), decodeJSON[pathReq])
}

// --- read_slide_text ---

type slideTextReq struct {
	Path  string `json:"path"`
	Slide int    `json:"slide_number"`
}

func (s *Service) registerSlideText(srv *mcp.Server, mw []kit.Middleware) {
	tool := &mcp.Tool{
		Name:        "read_slide_text",
		Description: "Read every text run on one slide, title included.",
		InputSchema: inputSchema(map[string]any{
			"path":         map[string]any{"type": "string", "description": "Presentation file path"},
			"slide_number": map[string]any{"type": "integer", "description": "Slide number (1-indexed)"},
		}, []string{"path", "slide_number"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*slideTextReq)
		st, err := s.SlideText(ctx, r.Path, r.Slide)
		if err != nil {
			return nil, err
		}
		out := map[string]any{"slide_number": st.Slide, "texts": st.Texts}
		if st.Title != "" {
			out["title"] = st.Title
		}
		return out, nil
	}

	kit.RegisterMCPTool(srv, tool, wrap(endpoint, mw), decodeJSON[slideTextReq])
}

// --- read_slides_metadata ---

type metadataReq struct {
	Path          string `json:"path"`
	IncludeHidden *bool  `json:"include_hidden,omitempty"`
}

func (s *Service) registerSlidesMetadata(srv *mcp.Server, mw []kit.Middleware) {
	tool := &mcp.Tool{
		Name:        "read_slides_metadata",
		Description: "List per-slide metadata in presentation order: number, title, hidden flag, whether notes exist.",
		InputSchema: inputSchema(map[string]any{
			"path":           map[string]any{"type": "string", "description": "Presentation file path"},
			"include_hidden": map[string]any{"type": "boolean", "description": "Include hidden slides (default true)"},
		}, []string{"path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*metadataReq)
		includeHidden := true
		if r.IncludeHidden != nil {
			includeHidden = *r.IncludeHidden
		}
		metas, err := s.SlidesMetadata(ctx, r.Path, includeHidden)
		if err != nil {
			return nil, err
		}
		return map[string]any{"slide_count": len(metas), "slides": metas}, nil
	}

	kit.RegisterMCPTool(srv, tool, wrap(endpoint, mw), decodeJSON[metadataReq])
}

// --- set_slide_visibility ---

type visibilityReq struct {
	Path    string `json:"path"`
	Slide   int    `json:"slide_number"`
	Hidden  bool   `json:"hidden"`
	InPlace *bool  `json:"in_place,omitempty"`
	Output  string `json:"output_path,omitempty"`
}

func (s *Service) registerVisibility(srv *mcp.Server, mw []kit.Middleware) {
	tool := &mcp.Tool{
		Name:        "set_slide_visibility",
		Description: "Hide a slide from the slideshow or bring it back. Only the slide's own part changes.",
		InputSchema: inputSchema(map[string]any{
			"path":         map[string]any{"type": "string", "description": "Presentation file path"},
			"slide_number": map[string]any{"type": "integer", "description": "Slide number (1-indexed)"},
			"hidden":       map[string]any{"type": "boolean", "description": "true hides the slide, false shows it"},
			"in_place":     map[string]any{"type": "boolean", "description": "Edit the source file (default when output_path is omitted)"},
			"output_path":  map[string]any{"type": "string", "description": "Write the result here instead of in place"},
		}, []string{"path", "slide_number", "hidden"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*visibilityReq)
		opts, err := resolveOptions(r.InPlace, r.Output)
		if err != nil {
			return nil, err
		}
		res, err := s.SetSlideHidden(ctx, r.Path, r.Slide, r.Hidden, opts)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"path":         res.Path,
			"slide_number": r.Slide,
			"hidden":       r.Hidden,
			"in_place":     res.InPlace,
		}, nil
	}

	kit.RegisterMCPTool(srv, tool, wrap(endpoint, mw), decodeJSON[visibilityReq])
}

// --- health_check ---

func (s *Service) registerHealth(srv *mcp.Server, mw []kit.Middleware) {
	tool := &mcp.Tool{
		Name:        "health_check",
		Description: "Report service health: uptime, cache statistics and operation counters.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		h := s.Health()
		return map[string]any{
			"status":         h.Status,
			"uptime_seconds": h.UptimeSeconds,
			"cache":          h.Cache,
			"operations":     h.Ops,
			"audit_enabled":  h.AuditEnabled,
		}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, wrap(endpoint, mw), decode)
}

// decodeJSON builds a decode function that unmarshals the call arguments
// into T.
func decodeJSON[T any](req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r T
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}
