// Package chat answers curriculum questions through the hosted language
// model and gates free accounts behind ad views.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.0-flash"
	clientTimeout  = 60 * time.Second
)

// ErrUnavailable is returned when the client has no API key or the
// upstream rejects the request.
var ErrUnavailable = errors.New("chat: tutor service unavailable")

// Client talks to the generative language API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

type ClientConfig struct {
	APIKey string
	// BaseURL overrides the hosted endpoint, used by tests.
	BaseURL string
	Model   string
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: clientTimeout},
	}
}

// Ready reports whether the client is configured to answer.
func (c *Client) Ready() bool {
	return c.apiKey != ""
}

// Model returns the configured model name for health reporting.
func (c *Client) Model() string {
	return c.model
}

// StudentProfile is the context the prompt is personalized with.
type StudentProfile struct {
	Name           string
	EducationStage string
	Country        string
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Answer asks the model one curriculum question on behalf of the student.
func (c *Client) Answer(ctx context.Context, question string, profile StudentProfile) (string, error) {
	if !c.Ready() {
		return "", ErrUnavailable
	}

	payload, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: buildPrompt(question, profile)}}}},
	})
	if err != nil {
		return "", fmt.Errorf("chat: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("chat: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("chat: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: upstream status %d", ErrUnavailable, resp.StatusCode)
	}

	var gen generateResponse
	if err := json.Unmarshal(body, &gen); err != nil {
		return "", fmt.Errorf("chat: unmarshal response: %w", err)
	}
	if gen.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrUnavailable, gen.Error.Message)
	}
	if len(gen.Candidates) == 0 || len(gen.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty answer", ErrUnavailable)
	}
	return gen.Candidates[0].Content.Parts[0].Text, nil
}

// buildPrompt frames the question for an Arabic-speaking tutor scoped to
// the student's country and education stage.
func buildPrompt(question string, p StudentProfile) string {
	name := p.Name
	if name == "" {
		name = "طالب"
	}
	stage := p.EducationStage
	if stage == "" {
		stage = "الثانوية العامة"
	}
	country := p.Country
	if country == "" {
		country = "المملكة العربية السعودية"
	}
	return fmt.Sprintf(`أنت معلم خبير في المنهج %s للمرحلة %s.
اسم الطالب هو %s.

مهامك الرئيسية:
• تقديم إجابات تعليمية دقيقة وموثوقة
• التركيز على المنهج الدراسي لدولة %s والمرحلة %s
• استخدام أسلوب تعليمي واضح ومناسب لعمر الطالب
• تقديم أمثلة عملية ونصائح دراسية مفيدة

قواعد الإجابة:
1. ابدأ بترحيب شخصي باستخدام اسم الطالب
2. قدم إجابة شاملة ومنظمة
3. استخدم نقاط ترقيم وتنسيق واضح
4. اختتم بتشجيع للطالب

السؤال: %s

أجب بالعربية الفصحى مع لمسة ودية.`, country, stage, name, country, stage, question)
}
