package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const classifyPrompt = `
Classify the main object in this image.
Return the five most likely classes with a probability between 0 and 1 for each, most likely first.
%s
Output format:
{
	"classes": [
		{"name": "cat", "probability": 0.81},
		{"name": "dog", "probability": 0.10}
	]
}
Return ONLY the JSON response, no extra text.
`

// GeminiClassifier asks a Gemini vision model to rank classes for a crop.
type GeminiClassifier struct {
	client    *genai.Client
	modelName string
	labels    []string
}

func NewGeminiClassifier(ctx context.Context, apiKey, modelName string, labels []string) (*GeminiClassifier, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	return &GeminiClassifier{
		client:    client,
		modelName: modelName,
		labels:    labels,
	}, nil
}

func (g *GeminiClassifier) Ready() bool {
	return g.client != nil
}

func (g *GeminiClassifier) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func (g *GeminiClassifier) Classify(ctx context.Context, imagePath string) (*ClassificationOutput, error) {
	imgData, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	restrict := ""
	if len(g.labels) > 0 {
		restrict = "Only use classes from this list: " + strings.Join(g.labels, ", ") + "."
	}

	model := g.client.GenerativeModel(g.modelName)
	img := genai.ImageData(imageFormat(imgData), imgData)
	res, err := model.GenerateContent(ctx, genai.Text(fmt.Sprintf(classifyPrompt, restrict)), img)
	if err != nil {
		return nil, err
	}

	if len(res.Candidates) == 0 || res.Candidates[0].Content == nil || len(res.Candidates[0].Content.Parts) == 0 {
		return &ClassificationOutput{}, nil
	}

	text, ok := res.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return nil, errors.New("unexpected response format from Gemini API")
	}

	return parseGeminiClasses(string(text))
}

type geminiClasses struct {
	Classes []struct {
		Name        string  `json:"name"`
		Probability float64 `json:"probability"`
	} `json:"classes"`
}

func parseGeminiClasses(response string) (*ClassificationOutput, error) {
	jsonStart := strings.Index(response, "{")
	jsonEnd := strings.LastIndex(response, "}")
	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		return nil, errors.New("cannot find valid JSON in response")
	}

	var parsed geminiClasses
	if err := json.Unmarshal([]byte(response[jsonStart:jsonEnd+1]), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse Gemini response: %w", err)
	}

	if parsed.Classes == nil {
		return &ClassificationOutput{Frames: []ClassificationFrame{{}}}, nil
	}

	frame := ClassificationFrame{
		Probs: make([]float64, 0, len(parsed.Classes)),
		Names: make([]string, 0, len(parsed.Classes)),
	}
	for _, c := range parsed.Classes {
		frame.Names = append(frame.Names, c.Name)
		frame.Probs = append(frame.Probs, c.Probability)
	}
	return &ClassificationOutput{Frames: []ClassificationFrame{frame}}, nil
}

// imageFormat names the genai image format of data ("jpeg", "png", ...).
// It sniffs the bytes, since crops of some inputs are stored as JPEG under
// the original extension.
func imageFormat(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	default:
		return "jpeg"
	}
}
