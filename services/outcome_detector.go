package services

import (
	"log"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/playwright-community/playwright-go"
)

// Negative phrases short-circuit to failure regardless of any positive match:
// a validation complaint on the page means the form did not go through.
var negativePhrases = []string{
	"please fill out this field",
	"this field is required",
	"is required",
	"required field",
	"invalid email",
	"invalid phone",
	"please correct",
	"please complete",
	"there was a problem",
	"something went wrong",
}

var positivePhrases = []string{
	"thank you for your application",
	"thank you for applying",
	"application received",
	"application submitted",
	"application complete",
	"we have received your application",
	"successfully submitted",
	"your application has been submitted",
	"we'll be in touch",
	"what happens next",
	// Multilingual confirmations seen on European boards.
	"merci pour votre candidature",
	"candidature envoyée",
	"vielen dank für ihre bewerbung",
	"bewerbung erhalten",
	"gracias por tu solicitud",
	"solicitud recibida",
	"obrigado pela sua candidatura",
}

var successURLTokens = []string{"success", "confirmation", "thank", "complete", "submitted", "received"}

// OutcomeDetector decides whether a submission went through from page text
// and URL signals. It is one of two independent signals; the orchestrator
// ORs it with the vision verdict.
type OutcomeDetector struct {
	settleWait time.Duration
	pollEvery  time.Duration
}

func NewOutcomeDetector() *OutcomeDetector {
	return &OutcomeDetector{
		settleWait: 5 * time.Second,
		pollEvery:  500 * time.Millisecond,
	}
}

// HeuristicSuccess scans the rendered page. Negative phrases win outright;
// otherwise positive phrases confirm; otherwise it waits briefly for a
// redirect and judges the redirect target. URL tokens are only consulted
// after the URL actually changes, so a job posting whose own slug contains
// "submitted" or "complete" never confirms by itself.
func (d *OutcomeDetector) HeuristicSuccess(page playwright.Page) bool {
	if page == nil {
		return false
	}
	startURL := page.URL()

	switch d.ScanText(pageText(page)) {
	case scanNegative:
		log.Printf("Outcome heuristic: validation errors still on page")
		return false
	case scanPositive:
		log.Printf("Outcome heuristic: confirmation text found")
		return true
	}

	// Give a slow confirmation redirect a moment.
	deadline := time.Now().Add(d.settleWait)
	for time.Now().Before(deadline) {
		time.Sleep(d.pollEvery)
		if current := page.URL(); current != startURL {
			return d.confirmRedirect(current, pageText(page))
		}
	}
	return false
}

// confirmRedirect judges a post-submit redirect target: a success token in
// the new URL, or confirmation text on the new page.
func (d *OutcomeDetector) confirmRedirect(currentURL, text string) bool {
	if urlLooksSuccessful(currentURL) {
		log.Printf("Outcome heuristic: success token in URL %s", currentURL)
		return true
	}
	return d.ScanText(text) == scanPositive
}

type scanResult int

const (
	scanInconclusive scanResult = iota
	scanNegative
	scanPositive
)

// ScanText applies the phrase lists to already-extracted page text.
func (d *OutcomeDetector) ScanText(text string) scanResult {
	lower := strings.ToLower(text)
	for _, phrase := range negativePhrases {
		if strings.Contains(lower, phrase) {
			return scanNegative
		}
	}
	for _, phrase := range positivePhrases {
		if strings.Contains(lower, phrase) {
			return scanPositive
		}
	}
	return scanInconclusive
}

// pageText extracts the visible text of the page from its HTML.
func pageText(page playwright.Page) string {
	html, err := page.Content()
	if err != nil {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("script, style, noscript").Remove()
	return doc.Text()
}

func urlLooksSuccessful(pageURL string) bool {
	lower := strings.ToLower(pageURL)
	for _, token := range successURLTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}
