// Package ai generates free-text lead summaries. The pipeline treats the
// output as an opaque string attached to the lead's notes.
package ai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"leadflow_backend/internal/leads/repository"
	timelinerepo "leadflow_backend/internal/timeline/repository"
)

type Summarizer struct {
	client *genai.Client
	model  string
}

func NewSummarizer(ctx context.Context, apiKey, model string) (*Summarizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Summarizer{client: client, model: model}, nil
}

func (s *Summarizer) SummarizeLead(ctx context.Context, lead repository.Lead, history []timelinerepo.Event) (string, error) {
	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(buildPrompt(lead, history)), nil)
	if err != nil {
		return "", fmt.Errorf("generate lead summary: %w", err)
	}

	summary := strings.TrimSpace(resp.Text())
	if summary == "" {
		return "", fmt.Errorf("empty lead summary response")
	}
	return summary, nil
}

func buildPrompt(lead repository.Lead, history []timelinerepo.Event) string {
	lines := make([]string, 0, len(history))
	for _, event := range history {
		lines = append(lines, "- "+event.Type)
	}

	return fmt.Sprintf(`Contexto:
- Lead: %s
- Estado actual: %s
- Historial (más reciente primero):
%s

Tarea:
Escribe un resumen breve del estado de este lead para un asesor de ventas.
Reglas:
- Responde en español, máximo 4 frases.
- No inventes datos que no estén en el historial.
- No incluyas teléfonos ni direcciones.
`, lead.Name, lead.Status, strings.Join(lines, "\n"))
}
