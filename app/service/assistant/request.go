// Package assistant talks to the language model: it assembles the request,
// retries transient failures, streams fragments and parses the structured
// recommendation block out of the reply.
package assistant

import (
	"fmt"
	"strings"

	_ "embed"
)

//go:embed system_prompt.txt
var systemPromptTemplate string

//go:embed user_prompt_template.txt
var userPromptTemplate string

const noneValue = "none"

// Request is what the engine hands to the model for one turn.
type Request struct {
	SystemInstructions  string
	UserPayload         string
	StateHint           string
	RedirectInstruction string
}

// Input holds the pre-rendered sections of the user payload. Empty sections
// are rendered as "none".
type Input struct {
	Profile        string
	Enrichment     string
	PageCategory   string
	SessionSummary string
	Catalog        string
	History        string
	Message        string

	StateHint string
	Redirect  string
}

func NewRequest(in Input) Request {
	redirect := ""
	if in.Redirect != "" {
		redirect = fmt.Sprintf("Work this suggestion naturally into your reply: %q\n", in.Redirect)
	}

	system := strings.NewReplacer(
		"{state_hint}", in.StateHint,
		"{redirect}", redirect,
	).Replace(systemPromptTemplate)

	// Substituted text is never re-scanned: placeholders typed by the shopper
	// stay verbatim.
	user := strings.NewReplacer(
		"{profile}", orNone(in.Profile),
		"{enrichment}", orNone(in.Enrichment),
		"{page_category}", orNone(in.PageCategory),
		"{session_summary}", orNone(in.SessionSummary),
		"{catalog}", orNone(in.Catalog),
		"{history}", orNone(in.History),
		"{message}", in.Message,
	).Replace(userPromptTemplate)

	return Request{
		SystemInstructions:  system,
		UserPayload:         user,
		StateHint:           in.StateHint,
		RedirectInstruction: in.Redirect,
	}
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return noneValue
	}
	return s
}
