package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanTextNegativeBeatsPositive(t *testing.T) {
	d := NewOutcomeDetector()

	// Both signals present: the validation complaint wins.
	text := "Thank you for your application. However, this field is required."
	assert.Equal(t, scanNegative, d.ScanText(text))
}

func TestScanTextPositive(t *testing.T) {
	d := NewOutcomeDetector()

	assert.Equal(t, scanPositive, d.ScanText("We have received your application. Good luck!"))
	assert.Equal(t, scanPositive, d.ScanText("APPLICATION RECEIVED"))
}

func TestScanTextMultilingual(t *testing.T) {
	d := NewOutcomeDetector()

	assert.Equal(t, scanPositive, d.ScanText("Merci pour votre candidature !"))
	assert.Equal(t, scanPositive, d.ScanText("Vielen Dank für Ihre Bewerbung."))
	assert.Equal(t, scanPositive, d.ScanText("Gracias por tu solicitud"))
}

func TestScanTextInconclusive(t *testing.T) {
	d := NewOutcomeDetector()

	assert.Equal(t, scanInconclusive, d.ScanText("Senior Backend Engineer - Apply now"))
	assert.Equal(t, scanInconclusive, d.ScanText(""))
}

func TestURLLooksSuccessful(t *testing.T) {
	assert.True(t, urlLooksSuccessful("https://jobs.example.com/apply/confirmation"))
	assert.True(t, urlLooksSuccessful("https://example.com/thank-you"))
	assert.False(t, urlLooksSuccessful("https://jobs.example.com/apply/123"))
}

func TestHeuristicSuccessNilPage(t *testing.T) {
	d := NewOutcomeDetector()
	assert.False(t, d.HeuristicSuccess(nil))
}

func TestConfirmRedirect(t *testing.T) {
	d := NewOutcomeDetector()

	// A success token in the redirect target confirms on its own.
	assert.True(t, d.confirmRedirect("https://jobs.example.com/apply/confirmation", ""))

	// A neutral target needs confirmation text on the new page.
	assert.True(t, d.confirmRedirect("https://jobs.example.com/done", "Thank you for applying!"))
	assert.False(t, d.confirmRedirect("https://jobs.example.com/done", "Senior Backend Engineer"))
}
