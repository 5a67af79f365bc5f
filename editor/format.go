package editor

import "context"

// Format types accepted by FormatNotes.
const (
	FormatShortOriginal = "short_original"
	FormatSimple        = "simple"
)

// FormatNotes renders the structured notes template from two text parts.
// It shapes text only; nothing is generated and no file is touched. An
// empty formatType means short_original.
func FormatNotes(short, original, formatType string) (string, error) {
	switch formatType {
	case "", FormatShortOriginal:
		return "- Short version:\n" + short + "\n\n- Original:\n" + original, nil
	case FormatSimple:
		return short + "\n\n" + original, nil
	}
	return "", validationf("unknown format_type %q (want %q or %q)", formatType, FormatShortOriginal, FormatSimple)
}

// NotesData is one slide's pre-processed workflow payload.
type NotesData struct {
	Slide    int    `json:"slide_number"`
	Short    string `json:"short_text"`
	Original string `json:"original_text"`
}

// ProcessNotesWorkflow formats every entry with the short_original
// template and applies the whole batch in one commit. Validation and
// atomicity are ApplyUpdates's: any bad entry means no write at all.
func (s *Service) ProcessNotesWorkflow(ctx context.Context, path string, data []NotesData, opts Options) (*Result, error) {
	if len(data) == 0 {
		return nil, validationf("notes_data must be a non-empty list")
	}
	updates := make([]Update, 0, len(data))
	for _, nd := range data {
		text, err := FormatNotes(nd.Short, nd.Original, FormatShortOriginal)
		if err != nil {
			return nil, err
		}
		updates = append(updates, Update{Slide: nd.Slide, Text: text})
	}
	return s.ApplyUpdates(ctx, path, updates, opts)
}
