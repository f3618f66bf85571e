package generate

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/pagelens/pagelens/internal/logger"
)

// VertexGenerator implements Generator on Vertex AI Gemini.
type VertexGenerator struct {
	client    *genai.Client
	modelName string
	log       *logger.Logger
}

// NewVertexGenerator creates a Gemini-backed generator for the given project
// and region.
func NewVertexGenerator(ctx context.Context, projectID, region, modelName string, baseLog *logger.Logger) (*VertexGenerator, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("projectID and region must be set for the vertex generator")
	}
	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &VertexGenerator{
		client:    client,
		modelName: modelName,
		log:       baseLog.With("generator", "vertex", "model", modelName),
	}, nil
}

func (g *VertexGenerator) Close() error {
	return g.client.Close()
}

// Generate sends the page image with the instructional prompt and prior-page
// context, and returns whatever text the model produced. Content-policy
// refusals are not errors: the caller gets the (possibly empty) text and
// decides what to do with it.
func (g *VertexGenerator) Generate(ctx context.Context, image []byte, mime, prompt, contextText string, cfg Config) (string, error) {
	model := g.client.GenerativeModel(g.modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(SystemPrompt)},
	}
	generationConfig := genai.GenerationConfig{
		Temperature: genai.Ptr(cfg.Temperature),
	}
	if cfg.MaxOutputTokens > 0 {
		generationConfig.MaxOutputTokens = genai.Ptr(int32(cfg.MaxOutputTokens))
	}
	if cfg.Mode == ModeStructured {
		generationConfig.ResponseMIMEType = "application/json"
	}
	model.GenerationConfig = generationConfig
	// Academic material trips the default filters on medical and historical
	// content, so they are disabled; refusals are tolerated downstream.
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	fullPrompt := prompt
	if contextText != "" {
		fullPrompt = fullPrompt + "\n\n" + contextText
	}

	resp, err := model.GenerateContent(ctx,
		genai.Blob{MIMEType: mime, Data: image},
		genai.Text(fullPrompt),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate content from gemini: %w", err)
	}

	text := extractText(resp)
	if text == "" {
		g.log.Warn("no text extracted from model response")
	}
	return text, nil
}

// extractText concatenates the text parts of the first candidate. An empty
// string means the model returned nothing usable (blocked, refused, or
// empty), which the pipeline treats as low-quality output, not an error.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}
