package services

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"jobrunner/models"
)

func testHuman() *HumanSimulator {
	return &HumanSimulator{
		rng:          rand.New(rand.NewSource(1)),
		sleep:        func(time.Duration) {},
		humanizeProb: 0.7,
	}
}

func TestParseDirectiveFill(t *testing.T) {
	i := NewInstructionInterpreter(testHuman())

	action, ok := i.parseDirective(`fill Email with 'jane@example.com'`)
	assert.True(t, ok)
	assert.Equal(t, models.ActionFill, action.Action)
	assert.Equal(t, "Email", action.Selector)
	assert.Equal(t, "jane@example.com", action.Value)
}

func TestParseDirectiveSelect(t *testing.T) {
	i := NewInstructionInterpreter(testHuman())

	action, ok := i.parseDirective(`select 'United States' in dropdown Country`)
	assert.True(t, ok)
	assert.Equal(t, models.ActionSelect, action.Action)
	assert.Equal(t, "Country", action.Selector)
	assert.Equal(t, "United States", action.Value)
}

func TestParseDirectiveClickAndCheck(t *testing.T) {
	i := NewInstructionInterpreter(testHuman())

	action, ok := i.parseDirective(`click 'Submit Application'`)
	assert.True(t, ok)
	assert.Equal(t, models.ActionClick, action.Action)
	assert.Equal(t, "Submit Application", action.Selector)

	action, ok = i.parseDirective(`check 'I agree to the terms'`)
	assert.True(t, ok)
	assert.Equal(t, models.ActionCheck, action.Action)
	assert.Equal(t, "I agree to the terms", action.Selector)
}

func TestParseDirectiveCaptchaGrid(t *testing.T) {
	i := NewInstructionInterpreter(testHuman())

	action, ok := i.parseDirective(`click captcha image at position (2, 1)`)
	assert.True(t, ok)
	assert.Equal(t, ActionCaptchaGrid, action.Action)
	// Row 2, column 1 in a 3-column grid flattens to index 7.
	assert.Equal(t, "7", action.Selector)

	action, ok = i.parseDirective(`click captcha submit button`)
	assert.True(t, ok)
	assert.Equal(t, ActionCaptchaSubmit, action.Action)
}

func TestParseDirectiveMalformed(t *testing.T) {
	i := NewInstructionInterpreter(testHuman())

	for _, raw := range []string{
		"",
		"do something about the page",
		"frobnicate 'Email'",
		"the captcha cannot be solved automatically",
	} {
		_, ok := i.parseDirective(raw)
		assert.False(t, ok, "directive %q should not parse", raw)
	}
}

func TestNormalizeAliases(t *testing.T) {
	i := NewInstructionInterpreter(testHuman())

	cases := map[string]string{
		"type":   models.ActionFill,
		"choose": models.ActionSelect,
		"tick":   models.ActionCheck,
		"press":  models.ActionClick,
		"FILL":   models.ActionFill,
	}
	for alias, want := range cases {
		action, ok := i.normalize(models.CorrectiveAction{Action: alias, Selector: "Email", Value: "x"})
		assert.True(t, ok, "alias %q", alias)
		assert.Equal(t, want, action.Action)
	}

	_, ok := i.normalize(models.CorrectiveAction{Action: "explode", Selector: "Email"})
	assert.False(t, ok)
	_, ok = i.normalize(models.CorrectiveAction{Action: "fill"})
	assert.False(t, ok)
}

func TestExecuteMalformedNeverPanics(t *testing.T) {
	i := NewInstructionInterpreter(testHuman())
	evidence := models.NewEvidenceBundle()

	actions := []models.CorrectiveAction{
		{Raw: "garbage that matches nothing"},
		{Raw: ""},
		{Action: "unknown", Selector: "#x"},
		{Raw: "this embedded captcha cannot be solved"},
	}

	assert.NotPanics(t, func() {
		executed := i.Execute(nil, actions, evidence)
		assert.False(t, executed)
	})
}

func TestExecuteParsedActionAgainstNilPage(t *testing.T) {
	i := NewInstructionInterpreter(testHuman())
	evidence := models.NewEvidenceBundle()

	// A well-formed directive with no page to act on executes nothing.
	executed := i.Execute(nil, []models.CorrectiveAction{{Raw: `click 'Submit'`}}, evidence)
	assert.False(t, executed)
}

func TestLooksLikeSelector(t *testing.T) {
	assert.True(t, looksLikeSelector("#submit_app"))
	assert.True(t, looksLikeSelector("input[name='email']"))
	assert.True(t, looksLikeSelector("//button[1]"))
	assert.False(t, looksLikeSelector("Submit Application"))
}
