package match

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Decision is a resolver's pick among shortlisted candidates. An empty Key
// means the resolver saw no fitting candidate.
type Decision struct {
	Key    string
	Reason string
}

// Resolver breaks ties the fuzzy scorer could not: given a document line and
// a shortlist of near-equal candidates, it picks one or declines. Resolver
// failures must never fail an import; callers fall back to the fuzzy result.
type Resolver interface {
	Resolve(ctx context.Context, q Query, shortlist []Match) (Decision, error)
}

// GeminiResolver asks a Gemini model to pick the candidate. Answers come
// back as JSON so a chatty model cannot break parsing.
type GeminiResolver struct {
	client *genai.Client
	model  string
}

func NewGeminiResolver(ctx context.Context, apiKey, model string) (*GeminiResolver, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiResolver{client: client, model: model}, nil
}

func (r *GeminiResolver) Resolve(ctx context.Context, q Query, shortlist []Match) (Decision, error) {
	if len(shortlist) == 0 {
		return Decision{}, nil
	}

	resp, err := r.client.Models.GenerateContent(ctx,
		r.model,
		genai.Text(resolvePrompt(q, shortlist)),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
		},
	)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to resolve match: %w", err)
	}

	var answer struct {
		Choice int    `json:"choice"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(resp.Text()), &answer); err != nil {
		return Decision{}, fmt.Errorf("failed to decode resolver answer: %w", err)
	}
	if answer.Choice < 1 || answer.Choice > len(shortlist) {
		return Decision{Reason: answer.Reason}, nil
	}
	return Decision{Key: shortlist[answer.Choice-1].Key, Reason: answer.Reason}, nil
}

func (r *GeminiResolver) Close() error {
	// genai.Client is plain HTTP and exposes no Close; nothing to release.
	return nil
}

func resolvePrompt(q Query, shortlist []Match) string {
	var b strings.Builder
	b.WriteString("You are matching a line from a construction document (a variation or a supplier invoice) to the cost plan line it belongs to.\n")
	b.WriteString("Document line: ")
	b.WriteString(quote(q.Text))
	b.WriteString("\n")
	if q.Section != "" {
		b.WriteString("Section hint: ")
		b.WriteString(quote(q.Section))
		b.WriteString("\n")
	}
	b.WriteString("Cost plan candidates:\n")
	for i, m := range shortlist {
		fmt.Fprintf(&b, "%d. %s / %s\n", i+1, m.Section, m.Label)
	}
	b.WriteString("Pick the candidate that covers this scope of work. ")
	b.WriteString("Answer with JSON only: {\"choice\": <candidate number, or 0 if none fits>, \"reason\": \"<one sentence>\"}\n")
	return b.String()
}

// quote wraps free text so line breaks inside a description cannot
// masquerade as prompt structure.
func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
