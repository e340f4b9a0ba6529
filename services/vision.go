package services

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"jobrunner/models"
	"jobrunner/parsers"
)

const (
	geminiEndpoint     = "https://generativelanguage.googleapis.com/v1/models/gemini-1.5-pro:generateContent"
	resumeExcerptLimit = 2000
)

type visionRequest struct {
	Contents []visionContent `json:"contents"`
}

type visionContent struct {
	Role  string       `json:"role"`
	Parts []visionPart `json:"parts"`
}

type visionPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *visionInlineData `json:"inline_data,omitempty"`
}

type visionInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// VisionClient asks a vision-capable model whether a submission went through
// and what to do if it did not. An absent API key degrades to a fixed failing
// verdict with no instructions.
type VisionClient struct {
	apiKey   string
	client   *http.Client
	endpoint string
}

func NewVisionClient(apiKey string) *VisionClient {
	return &VisionClient{
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 60 * time.Second},
		endpoint: geminiEndpoint,
	}
}

// AnalyzeSubmission sends the latest full-page screenshot, a truncated resume
// excerpt and the known applicant values, and expects strict JSON back.
func (v *VisionClient) AnalyzeSubmission(screenshot []byte, resumeText string, fields map[string]string) models.VisionVerdict {
	if v.apiKey == "" {
		return models.VisionVerdict{Success: false, Reason: "API key not provided", Instructions: []models.CorrectiveAction{}}
	}

	prompt := buildVerdictPrompt(resumeText, fields)
	reqBody := visionRequest{
		Contents: []visionContent{{
			Role: "user",
			Parts: []visionPart{
				{Text: prompt},
				{InlineData: &visionInlineData{
					MimeType: "image/png",
					Data:     base64.StdEncoding.EncodeToString(screenshot),
				}},
			},
		}},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return failedVerdict(fmt.Sprintf("request encode failed: %v", err))
	}

	req, err := http.NewRequest("POST", v.endpoint+"?key="+v.apiKey, bytes.NewBuffer(jsonBody))
	if err != nil {
		return failedVerdict(fmt.Sprintf("request build failed: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return failedVerdict(fmt.Sprintf("vision model unreachable: %v", err))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return failedVerdict(fmt.Sprintf("vision model error: %s", body))
	}

	text := gjson.GetBytes(body, "candidates.0.content.parts.0.text").String()
	if text == "" {
		return failedVerdict("vision model returned no text")
	}
	return ParseVerdict(text)
}

func buildVerdictPrompt(resumeText string, fields map[string]string) string {
	resumeText = parsers.Excerpt(resumeText, resumeExcerptLimit)

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	var known strings.Builder
	for _, name := range names {
		fmt.Fprintf(&known, "- %s: %s\n", name, fields[name])
	}

	return fmt.Sprintf(`You are inspecting a screenshot of a job application page taken right after a submit attempt.

Applicant data available:
%s
Resume excerpt:
%s

Decide whether the application was actually submitted. If it was not, list the concrete page actions needed to fix it.

Respond with ONLY a JSON object, no prose, in this exact shape:
{"success": true|false, "reason": "<one sentence>", "captcha_type": "<recaptcha|hcaptcha|text|audio|none>", "instructions": [{"action": "fill|select|check|click", "selector": "<visible label or CSS selector>", "value": "<value if any>"}]}`,
		known.String(), resumeText)
}

var braceObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// ParseVerdict turns raw model output into a verdict. It unwraps code fences,
// then tries strict JSON, then a best-effort extraction of the first
// brace-delimited object. Anything unparseable becomes a failing verdict with
// no instructions.
func ParseVerdict(text string) models.VisionVerdict {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if verdict, ok := decodeVerdict(cleaned); ok {
		return verdict
	}
	if m := braceObjectPattern.FindString(cleaned); m != "" {
		if verdict, ok := decodeVerdict(m); ok {
			return verdict
		}
	}
	return failedVerdict("could not parse vision model response")
}

// rawVerdict tolerates instructions arriving either as structured objects or
// as plain directive strings.
type rawVerdict struct {
	Success      bool              `json:"success"`
	Reason       string            `json:"reason"`
	CaptchaType  string            `json:"captcha_type"`
	Instructions []json.RawMessage `json:"instructions"`
}

func decodeVerdict(text string) (models.VisionVerdict, bool) {
	if !gjson.Valid(text) {
		return models.VisionVerdict{}, false
	}
	var raw rawVerdict
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return models.VisionVerdict{}, false
	}

	verdict := models.VisionVerdict{
		Success:      raw.Success,
		Reason:       raw.Reason,
		CaptchaType:  raw.CaptchaType,
		Instructions: []models.CorrectiveAction{},
	}
	for _, entry := range raw.Instructions {
		var action models.CorrectiveAction
		if err := json.Unmarshal(entry, &action); err == nil && action.Action != "" {
			verdict.Instructions = append(verdict.Instructions, action)
			continue
		}
		var directive string
		if err := json.Unmarshal(entry, &directive); err == nil && directive != "" {
			verdict.Instructions = append(verdict.Instructions, models.CorrectiveAction{Raw: directive})
		}
	}
	return verdict, true
}

func failedVerdict(reason string) models.VisionVerdict {
	return models.VisionVerdict{Success: false, Reason: reason, Instructions: []models.CorrectiveAction{}}
}
