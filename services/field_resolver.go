package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/playwright-community/playwright-go"

	"jobrunner/models"
)

// fieldLabels maps logical field names to the visible label texts to try
// first. Matching is case-insensitive substring on the accessible name.
var fieldLabels = map[string][]string{
	"full_name":          {"Full name", "Name", "Your name"},
	"email":              {"Email", "E-mail", "Email address"},
	"phone":              {"Phone", "Phone number", "Mobile"},
	"location":           {"Location", "City", "Current location", "Where are you based"},
	"current_company":    {"Current company", "Company", "Employer"},
	"current_location":   {"Current location", "Where do you live"},
	"salary_expectation": {"Salary", "Salary expectation", "Expected salary", "Compensation"},
	"notice_period":      {"Notice period", "Availability", "Start date"},
	"note":               {"Cover letter", "Additional information", "Note", "Message", "Why do you want"},
	"portfolio":          {"Portfolio", "Website", "Personal website"},
}

// fieldPatterns is the curated, platform-agnostic attribute-pattern fallback
// per logical field: name, aria-label and placeholder, case-insensitive.
var fieldPatterns = map[string][]string{
	"full_name": {
		"input[name='name']", "input[autocomplete='name']",
		"input[name*='full_name' i]", "input[placeholder*='name' i]", "input[aria-label*='name' i]",
	},
	"email": {
		"input[type='email']", "input[name*='email' i]",
		"input[placeholder*='email' i]", "input[aria-label*='email' i]",
	},
	"phone": {
		"input[type='tel']", "input[name*='phone' i]",
		"input[placeholder*='phone' i]", "input[aria-label*='phone' i]",
	},
	"location": {
		"input[name*='location' i]", "input[name*='city' i]",
		"input[placeholder*='location' i]", "input[placeholder*='city' i]", "input[aria-label*='location' i]",
	},
	"current_company": {
		"input[name*='company' i]", "input[name*='employer' i]",
		"input[placeholder*='company' i]", "input[aria-label*='company' i]",
	},
	"current_location": {
		"input[name*='current_location' i]", "input[name*='residence' i]",
	},
	"salary_expectation": {
		"input[name*='salary' i]", "input[name*='compensation' i]",
		"input[placeholder*='salary' i]", "input[aria-label*='salary' i]",
	},
	"notice_period": {
		"input[name*='notice' i]", "input[name*='availability' i]",
		"input[placeholder*='notice' i]",
	},
	"note": {
		"textarea[name*='cover' i]", "textarea[name*='message' i]", "textarea[name*='additional' i]",
		"textarea[placeholder*='cover' i]", "textarea",
	},
	"portfolio": {
		"input[name*='portfolio' i]", "input[name*='website' i]",
		"input[placeholder*='portfolio' i]", "input[placeholder*='website' i]",
	},
}

// autocompleteFields use the fill-then-pick-a-suggestion strategy.
var autocompleteFields = map[string]bool{
	"location":         true,
	"current_location": true,
}

// FieldResolver resolves logical field names to fillable controls, trying
// strategies in order and short-circuiting on first success. A field that
// resists every strategy is recorded as an issue, never a run failure.
type FieldResolver struct {
	human *HumanSimulator
}

func NewFieldResolver(human *HumanSimulator) *FieldResolver {
	return &FieldResolver{human: human}
}

// FillFields writes every non-empty field value into the form. Returns the
// number of fields newly filled. Re-filling an already-filled field is a
// no-op on the state's filled set.
func (r *FieldResolver) FillFields(page playwright.Page, fields map[string]string, selectors SelectorSet, state *models.ApplicationState, evidence *models.EvidenceBundle) int {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	filled := 0
	for _, name := range names {
		value := fields[name]
		if strings.TrimSpace(value) == "" {
			continue
		}
		if r.FillField(page, name, value, selectors, state, evidence) {
			filled++
		}
	}
	return filled
}

// FillField runs the strategy chain for one logical field: label text, then
// the detected platform's selectors, then the generic attribute patterns,
// then the autocomplete flow for fields that want it.
func (r *FieldResolver) FillField(page playwright.Page, name, value string, selectors SelectorSet, state *models.ApplicationState, evidence *models.EvidenceBundle) bool {
	if page != nil {
		if name == "full_name" && r.fillSplitName(page, value, selectors) {
			evidence.Logf("Filled %s across first/last name controls", name)
			state.MarkFilled(name)
			return true
		}

		if r.fillByLabel(page, name, value) {
			evidence.Logf("Filled %s via label match", name)
			state.MarkFilled(name)
			return true
		}

		if r.fillBySelectors(page, platformFieldSelectors(name, selectors), value) {
			evidence.Logf("Filled %s via platform selector", name)
			state.MarkFilled(name)
			return true
		}

		if r.fillBySelectors(page, fieldPatterns[name], value) {
			evidence.Logf("Filled %s via attribute pattern", name)
			state.MarkFilled(name)
			return true
		}

		if autocompleteFields[name] && r.fillAutocomplete(page, name, value) {
			evidence.Logf("Filled %s via autocomplete", name)
			state.MarkFilled(name)
			return true
		}
	}

	evidence.Logf("Could not resolve a control for field %s", name)
	state.AddIssue(fmt.Sprintf("field %s: no fillable control found", name))
	return false
}

// platformFieldSelectors maps a logical field name onto the detected
// platform's selector set.
func platformFieldSelectors(name string, set SelectorSet) []string {
	switch name {
	case "full_name":
		return set.FullName
	case "email":
		return set.Email
	case "phone":
		return set.Phone
	case "location", "current_location":
		return set.Location
	}
	return nil
}

// splitFullName divides a full name at the last space, so compound first
// names stay together. Single-word names yield an empty last name.
func splitFullName(value string) (string, string) {
	value = strings.TrimSpace(value)
	idx := strings.LastIndex(value, " ")
	if idx < 0 {
		return value, ""
	}
	return strings.TrimSpace(value[:idx]), strings.TrimSpace(value[idx+1:])
}

// fillSplitName handles boards that want separate first and last name
// controls instead of one full-name field.
func (r *FieldResolver) fillSplitName(page playwright.Page, value string, set SelectorSet) bool {
	first, last := splitFullName(value)
	if first == "" || last == "" {
		return false
	}
	for _, selector := range set.FirstName {
		locator := page.Locator(selector).First()
		if visible, _ := locator.IsVisible(); !visible {
			continue
		}
		if !r.writeValue(page, locator, first) {
			continue
		}
		r.fillBySelectors(page, set.LastName, last)
		return true
	}
	return false
}

func (r *FieldResolver) fillByLabel(page playwright.Page, name, value string) bool {
	for _, label := range fieldLabels[name] {
		locator := page.GetByLabel(label).First()
		if visible, _ := locator.IsVisible(); !visible {
			continue
		}
		if r.writeValue(page, locator, value) {
			return true
		}
	}
	return false
}

func (r *FieldResolver) fillBySelectors(page playwright.Page, selectors []string, value string) bool {
	for _, selector := range selectors {
		locator := page.Locator(selector).First()
		if visible, _ := locator.IsVisible(); !visible {
			continue
		}
		if r.writeValue(page, locator, value) {
			return true
		}
	}
	return false
}

// fillAutocomplete types the value, waits briefly for a suggestion list and
// picks the first entry; when no list appears it commits with Enter.
func (r *FieldResolver) fillAutocomplete(page playwright.Page, name, value string) bool {
	for _, selector := range fieldPatterns[name] {
		locator := page.Locator(selector).First()
		if visible, _ := locator.IsVisible(); !visible {
			continue
		}
		if err := locator.Fill(value); err != nil {
			continue
		}
		r.human.Think("simple_field")

		option := page.Locator("[role='option'], [role='listbox'] li, ul[class*='autocomplete' i] li, .pac-item").First()
		if err := option.WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: playwright.Float(2500),
		}); err == nil {
			if err := option.Click(); err == nil {
				return true
			}
		}
		// No dropdown appeared; commit the typed value.
		if err := locator.Press("Enter"); err == nil {
			return true
		}
	}
	return false
}

// writeValue fills the control, taking the humanized path with a fixed
// probability and plain assignment otherwise, then verifies the write stuck.
func (r *FieldResolver) writeValue(page playwright.Page, locator playwright.Locator, value string) bool {
	if r.human.ShouldHumanize() {
		r.human.Think("simple_field")
		if err := r.human.Type(page, locator, value); err == nil {
			if got, err := locator.InputValue(); err == nil && got != "" {
				return true
			}
		}
	}
	if err := locator.Fill(value); err != nil {
		return false
	}
	got, err := locator.InputValue()
	return err == nil && got == value
}
