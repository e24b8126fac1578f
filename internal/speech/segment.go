package speech

import "strings"

// Segment is one sentence-like chunk of reply text submitted for synthesis.
// Ordinal defines the required playback order. Text is the pronunciation-
// normalized form actually sent to the synthesis service.
type Segment struct {
	Ordinal int
	Raw     string
	Text    string
}

// AudioUnit is the synthesized result for one Segment.
type AudioUnit struct {
	Ordinal int
	Text    string
	PCM     []byte
}

// Segmenter accumulates streamed reply text and extracts complete
// sentence-like units, splitting on '.', '!', '?' and newlines while
// retaining terminal punctuation. Ordinals are assigned 0, 1, 2, ... in
// extraction order regardless of how the incoming chunks are split.
//
// Segmenter is not safe for concurrent use; feed it from one goroutine.
type Segmenter struct {
	pending strings.Builder
	next    int
}

// Write appends a reply-text chunk and returns any complete segments it
// finishes. A chunk may complete zero, one, or several segments.
func (s *Segmenter) Write(chunk string) []Segment {
	var out []Segment
	for _, r := range chunk {
		switch r {
		case '.', '!', '?':
			s.pending.WriteRune(r)
			if seg, ok := s.cut(); ok {
				out = append(out, seg)
			}
		case '\n', '\r':
			if seg, ok := s.cut(); ok {
				out = append(out, seg)
			}
		default:
			s.pending.WriteRune(r)
		}
	}
	return out
}

// Flush emits the trailing text as a final segment even without a sentence
// terminator. Call it exactly once, after the reply stream closes.
func (s *Segmenter) Flush() (Segment, bool) {
	return s.cut()
}

func (s *Segmenter) cut() (Segment, bool) {
	raw := strings.TrimSpace(s.pending.String())
	s.pending.Reset()
	if raw == "" {
		return Segment{}, false
	}
	seg := Segment{Ordinal: s.next, Raw: raw, Text: CleanForSpeech(raw)}
	s.next++
	return seg, true
}
