package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"jobrunner/models"
)

func TestFillFieldsSkipsEmptyValues(t *testing.T) {
	resolver := NewFieldResolver(testHuman())
	state := models.NewApplicationState()
	evidence := models.NewEvidenceBundle()

	fields := map[string]string{
		"email": "  ",
		"phone": "",
		"note":  "\t",
	}
	filled := resolver.FillFields(nil, fields, genericSelectors(), state, evidence)

	assert.Zero(t, filled)
	// Blank values never reach the strategy chain, so no issues either.
	assert.Empty(t, state.Issues)
	assert.Empty(t, state.FilledFields)
}

func TestFillFieldRecordsIssueWhenNothingMatches(t *testing.T) {
	resolver := NewFieldResolver(testHuman())
	state := models.NewApplicationState()
	evidence := models.NewEvidenceBundle()

	ok := resolver.FillField(nil, "email", "jane@example.com", genericSelectors(), state, evidence)

	assert.False(t, ok)
	assert.False(t, state.IsFilled("email"))
	assert.Len(t, state.Issues, 1)
	assert.Contains(t, state.Issues[0], "email")
}

func TestFillFieldsCountsIssuesPerUnresolvedField(t *testing.T) {
	resolver := NewFieldResolver(testHuman())
	state := models.NewApplicationState()
	evidence := models.NewEvidenceBundle()

	fields := map[string]string{
		"email": "jane@example.com",
		"phone": "555-0100",
	}
	filled := resolver.FillFields(nil, fields, genericSelectors(), state, evidence)

	assert.Zero(t, filled)
	assert.Len(t, state.Issues, 2)
}

func TestPlatformFieldSelectors(t *testing.T) {
	set := selectorsFor("Greenhouse")

	assert.Contains(t, platformFieldSelectors("email", set), "input#email")
	assert.Contains(t, platformFieldSelectors("phone", set), "input#phone")
	assert.Equal(t, set.Location, platformFieldSelectors("current_location", set))
	// Fields without a platform slice fall through to the generic patterns.
	assert.Nil(t, platformFieldSelectors("salary_expectation", set))
}

func TestSplitFullName(t *testing.T) {
	first, last := splitFullName("Jane Doe")
	assert.Equal(t, "Jane", first)
	assert.Equal(t, "Doe", last)

	// Compound first names keep everything before the final space.
	first, last = splitFullName("Mary Jane Watson")
	assert.Equal(t, "Mary Jane", first)
	assert.Equal(t, "Watson", last)

	first, last = splitFullName("  Prince  ")
	assert.Equal(t, "Prince", first)
	assert.Empty(t, last)
}
