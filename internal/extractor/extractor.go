// Package extractor calls the chat model to propose candidate facts for one
// perizia document. The output is untrusted by construction: everything it
// returns is re-grounded and classified by the field-state engine before any
// of it reaches a result.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rs/zerolog"

	"github.com/nexodify/periscan/internal/cache"
	"github.com/nexodify/periscan/internal/fieldstate"
	"github.com/nexodify/periscan/internal/llm"
)

// Extractor performs the candidate-extraction model pass.
type Extractor struct {
	Client llm.Client
	Cache  *cache.Cache
	Model  string
	// SystemPrompt, when non-empty, overrides the default system message.
	SystemPrompt string
	Log          zerolog.Logger
}

// Extract asks the model for candidate facts over the materialized page
// texts. Any model or parse failure surfaces as an error; callers treat that
// as an absence of candidate input, never as grounds to invent values.
func (e *Extractor) Extract(ctx context.Context, pages []fieldstate.Page) (fieldstate.CandidateSet, error) {
	var set fieldstate.CandidateSet
	if e.Client == nil {
		return set, fmt.Errorf("extractor: no chat client configured")
	}
	if strings.TrimSpace(e.Model) == "" {
		return set, fmt.Errorf("extractor: no model configured")
	}

	sys := buildSystemMessage()
	if strings.TrimSpace(e.SystemPrompt) != "" {
		sys = e.SystemPrompt
	}
	user := buildUserMessage(pages)

	if e.Cache != nil {
		key := cache.KeyFrom(e.Model, sys+"\n\n"+user)
		if raw, ok, _ := e.Cache.Get(ctx, key); ok {
			if err := json.Unmarshal(raw, &set); err == nil {
				e.Log.Debug().Str("model", e.Model).Msg("extraction served from cache")
				return set, nil
			}
		}
	}

	req := openai.ChatCompletionRequest{
		Model: e.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: sys},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.0,
		N:           1,
	}
	resp, err := e.Client.CreateChatCompletion(ctx, req)
	if err != nil {
		return set, fmt.Errorf("extractor: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return set, fmt.Errorf("extractor: empty response from model %s", e.Model)
	}
	raw := stripJSONFence(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		return set, fmt.Errorf("extractor: response is not the expected JSON shape: %w", err)
	}
	if e.Cache != nil {
		if b, err := json.Marshal(set); err == nil {
			_ = e.Cache.Save(ctx, cache.KeyFrom(e.Model, sys+"\n\n"+user), b)
		}
	}
	e.Log.Info().
		Str("model", e.Model).
		Int("fields", len(set.Fields)).
		Int("lots", len(set.Lots)).
		Int("killers", len(set.LegalKillers)).
		Msg("extraction completed")
	return set, nil
}

func buildSystemMessage() string {
	var sb strings.Builder
	sb.WriteString("You extract facts from Italian real-estate auction appraisal reports (perizie). ")
	sb.WriteString("Respond with strict JSON only, no prose and no code fences, shaped as ")
	sb.WriteString(`{"fields":{<key>:{"value":any,"confidence":"high|medium|low","evidence":[{"page":int,"quote":string}],"searched_in":[{"page":int,"quote":string}]}},`)
	sb.WriteString(`"lots":[...],"money_box":[...],"legal_killers":[...]}. `)
	sb.WriteString("Field keys: ")
	sb.WriteString(strings.Join(fieldstate.RequiredKeys(), ", "))
	sb.WriteString(". Every evidence quote must be copied verbatim from the cited page. ")
	sb.WriteString("If a fact is absent, set value to null and list the pages you searched. ")
	sb.WriteString("Never guess values and never cite pages that do not contain the quote.")
	return sb.String()
}

func buildUserMessage(pages []fieldstate.Page) string {
	var sb strings.Builder
	sb.WriteString("Extract the candidate facts from this document.\n")
	for _, p := range pages {
		fmt.Fprintf(&sb, "\n=== PAGE %d ===\n", p.Number)
		sb.WriteString(p.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// stripJSONFence tolerates models that wrap the payload in a Markdown fence
// despite the instructions.
func stripJSONFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
