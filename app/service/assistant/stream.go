package assistant

import (
	"iter"
	"strings"
)

const fence = "```"

// displayFilter passes reply text through until the structured block opens.
// Everything from the first fence on is withheld; trailing backticks are held
// back until it is clear they do not start one.
type displayFilter struct {
	pending string
	closed  bool
}

func (f *displayFilter) push(chunk string) string {
	if f.closed {
		return ""
	}

	text := f.pending + chunk
	if i := strings.Index(text, fence); i >= 0 {
		f.closed = true
		f.pending = ""
		return text[:i]
	}

	held := len(text) - len(strings.TrimRight(text, "`"))
	f.pending = text[len(text)-held:]
	return text[:len(text)-held]
}

func (f *displayFilter) flush() string {
	if f.closed {
		return ""
	}
	rest := f.pending
	f.pending = ""
	return rest
}

// CollectStream concatenates a fragment sequence and returns the raw reply.
// When emit is set it receives the display text as it arrives, without the
// structured block. An emit error stops the sequence and is returned as is.
func CollectStream(seq iter.Seq2[string, error], emit func(string) error) (string, error) {
	var (
		b      strings.Builder
		filter displayFilter
	)

	send := func(text string) error {
		if emit == nil || text == "" {
			return nil
		}
		return emit(text)
	}

	for chunk, err := range seq {
		if err != nil {
			return b.String(), err
		}
		b.WriteString(chunk)
		if err = send(filter.push(chunk)); err != nil {
			return b.String(), err
		}
	}

	return b.String(), send(filter.flush())
}
