package parsers

import (
	"bytes"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"baliance.com/gooxml/document"
	"github.com/ledongthuc/pdf"
)

// ResumeExtractor turns raw resume bytes into a best-effort map of logical
// field names to inferred values, plus the raw text. Missing or unparseable
// documents yield an empty map, never an error that aborts a run.
type ResumeExtractor struct {
	client *http.Client

	emailRegex *regexp.Regexp
	phoneRegex *regexp.Regexp
	nameRegex  *regexp.Regexp
}

func NewResumeExtractor() *ResumeExtractor {
	return &ResumeExtractor{
		client:     &http.Client{Timeout: 30 * time.Second},
		emailRegex: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`),
		phoneRegex: regexp.MustCompile(`(\+?\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`),
		nameRegex:  regexp.MustCompile(`^[A-Z][a-zA-Z.'-]+(?:\s+[A-Z][a-zA-Z.'-]+){1,3}$`),
	}
}

// Fetch downloads resume bytes from a URL. Failures return nil bytes so the
// caller can proceed without a resume.
func (e *ResumeExtractor) Fetch(resumeURL string) []byte {
	if resumeURL == "" {
		return nil
	}
	resp, err := e.client.Get(resumeURL)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return nil
	}
	return data
}

// Extract returns (inferred fields, raw text). The field map only contains
// keys it could infer with some confidence.
func (e *ResumeExtractor) Extract(data []byte) (map[string]string, string) {
	fields := make(map[string]string)
	if len(data) == 0 {
		return fields, ""
	}

	text := e.extractText(data)
	if strings.TrimSpace(text) == "" {
		return fields, ""
	}

	if email := e.emailRegex.FindString(text); email != "" {
		fields["email"] = email
	}
	if phone := e.phoneRegex.FindString(text); phone != "" {
		fields["phone"] = strings.TrimSpace(phone)
	}
	if name := e.inferName(text); name != "" {
		fields["full_name"] = name
	}
	return fields, text
}

func (e *ResumeExtractor) extractText(data []byte) string {
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return e.extractPDFText(data)
	}
	// DOCX files are zip archives.
	if bytes.HasPrefix(data, []byte("PK")) {
		return e.extractDocxText(data)
	}
	// Assume plain text.
	return string(data)
}

func (e *ResumeExtractor) extractPDFText(data []byte) string {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}
	var builder strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		builder.WriteString(content)
		builder.WriteString("\n")
	}
	return builder.String()
}

func (e *ResumeExtractor) extractDocxText(data []byte) string {
	doc, err := document.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}
	var builder strings.Builder
	for _, para := range doc.Paragraphs() {
		for _, run := range para.Runs() {
			builder.WriteString(run.Text())
		}
		builder.WriteString("\n")
	}
	return builder.String()
}

// inferName takes the first short, title-cased line that is not contact info.
func (e *ResumeExtractor) inferName(text string) string {
	for i, line := range strings.Split(text, "\n") {
		if i > 10 {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, "@") || e.phoneRegex.MatchString(line) {
			continue
		}
		if e.nameRegex.MatchString(line) {
			return line
		}
	}
	return ""
}

// Excerpt bounds the raw text for downstream prompts without splitting a
// multi-byte rune at the cut.
func Excerpt(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "…"
}
