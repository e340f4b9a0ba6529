package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/playwright-community/playwright-go"

	"jobrunner/models"
)

// captchaGridColumns is the assumed column count when flattening (row, col)
// grid directives into an image index.
const captchaGridColumns = 3

var actionAliases = map[string]string{
	"fill":   models.ActionFill,
	"type":   models.ActionFill,
	"enter":  models.ActionFill,
	"select": models.ActionSelect,
	"choose": models.ActionSelect,
	"pick":   models.ActionSelect,
	"check":  models.ActionCheck,
	"tick":   models.ActionCheck,
	"click":  models.ActionClick,
	"press":  models.ActionClick,
	"tap":    models.ActionClick,
}

var (
	fillDirective    = regexp.MustCompile(`(?i)^(?:fill|type|enter)(?:\s+in)?\s+['"]?(.+?)['"]?\s+with\s+['"](.*)['"]\s*\.?$`)
	selectDirective  = regexp.MustCompile(`(?i)^(?:select|choose|pick)\s+['"](.+)['"]\s+(?:in|from)\s+(?:the\s+)?(?:dropdown\s+)?['"]?(.+?)['"]?\s*\.?$`)
	checkDirective   = regexp.MustCompile(`(?i)^(?:check|tick)\s+(?:the\s+)?['"]?(.+?)['"]?(?:\s+checkbox)?\s*\.?$`)
	clickDirective   = regexp.MustCompile(`(?i)^(?:click|press|tap)\s+(?:on\s+)?(?:the\s+)?['"]?(.+?)['"]?(?:\s+button)?\s*\.?$`)
	gridDirective    = regexp.MustCompile(`(?i)captcha\s+image\s+at\s+position\s*\((\d+)\s*,\s*(\d+)\)`)
	captchaSubmitDir = regexp.MustCompile(`(?i)captcha\s+(submit|verify)`)
	unsolvableDir    = regexp.MustCompile(`(?i)cannot\s+be\s+solved|unsolvable|embedded\s+captcha`)
)

// InstructionInterpreter replays vision-model corrective actions against the
// live page. It accepts structured actions and free-text directives, never
// panics, and reports whether at least one action executed.
type InstructionInterpreter struct {
	human *HumanSimulator
}

func NewInstructionInterpreter(human *HumanSimulator) *InstructionInterpreter {
	return &InstructionInterpreter{human: human}
}

// Execute runs the actions in order. Malformed or unknown directives execute
// zero actions; directives flagged as unsolvable embedded challenges are
// skipped without counting as failures.
func (i *InstructionInterpreter) Execute(page playwright.Page, actions []models.CorrectiveAction, evidence *models.EvidenceBundle) bool {
	executed := 0
	for _, action := range actions {
		normalized, ok := i.normalize(action)
		if !ok {
			if action.Raw != "" && unsolvableDir.MatchString(action.Raw) {
				evidence.Logf("Skipping unsolvable challenge directive: %s", action.Raw)
				continue
			}
			evidence.Logf("Ignoring unrecognized instruction: %+v", action)
			continue
		}
		if i.apply(page, normalized, evidence) {
			executed++
		} else {
			evidence.Logf("Corrective action failed: %s %q", normalized.Action, normalized.Selector)
		}
	}
	return executed > 0
}

// normalize resolves aliasing and free-text directives into the canonical
// {action, selector, value} form.
func (i *InstructionInterpreter) normalize(action models.CorrectiveAction) (models.CorrectiveAction, bool) {
	if action.Raw != "" {
		return i.parseDirective(action.Raw)
	}
	kind, ok := actionAliases[strings.ToLower(strings.TrimSpace(action.Action))]
	if !ok || strings.TrimSpace(action.Selector) == "" {
		return models.CorrectiveAction{}, false
	}
	return models.CorrectiveAction{Action: kind, Selector: strings.TrimSpace(action.Selector), Value: action.Value}, true
}

func (i *InstructionInterpreter) parseDirective(raw string) (models.CorrectiveAction, bool) {
	directive := strings.TrimSpace(raw)
	if directive == "" || unsolvableDir.MatchString(directive) {
		return models.CorrectiveAction{}, false
	}

	if m := gridDirective.FindStringSubmatch(directive); len(m) == 3 {
		row, _ := strconv.Atoi(m[1])
		col, _ := strconv.Atoi(m[2])
		index := row*captchaGridColumns + col
		return models.CorrectiveAction{Action: ActionCaptchaGrid, Selector: strconv.Itoa(index)}, true
	}
	if captchaSubmitDir.MatchString(directive) {
		return models.CorrectiveAction{Action: ActionCaptchaSubmit}, true
	}
	if m := fillDirective.FindStringSubmatch(directive); len(m) == 3 {
		return models.CorrectiveAction{Action: models.ActionFill, Selector: m[1], Value: m[2]}, true
	}
	if m := selectDirective.FindStringSubmatch(directive); len(m) == 3 {
		return models.CorrectiveAction{Action: models.ActionSelect, Selector: m[2], Value: m[1]}, true
	}
	if m := checkDirective.FindStringSubmatch(directive); len(m) == 2 {
		return models.CorrectiveAction{Action: models.ActionCheck, Selector: m[1]}, true
	}
	if m := clickDirective.FindStringSubmatch(directive); len(m) == 2 {
		return models.CorrectiveAction{Action: models.ActionClick, Selector: m[1]}, true
	}
	return models.CorrectiveAction{}, false
}

// Internal action kinds for CAPTCHA grid directives; these never appear in
// structured payloads.
const (
	ActionCaptchaGrid   = "captcha_grid"
	ActionCaptchaSubmit = "captcha_submit"
)

func (i *InstructionInterpreter) apply(page playwright.Page, action models.CorrectiveAction, evidence *models.EvidenceBundle) bool {
	if page == nil {
		return false
	}
	switch action.Action {
	case models.ActionFill:
		target := i.resolveInput(page, action.Selector)
		if target == nil {
			return false
		}
		if i.human.ShouldHumanize() {
			if err := i.human.Type(page, target, action.Value); err == nil {
				return true
			}
		}
		return target.Fill(action.Value) == nil
	case models.ActionSelect:
		target := i.resolveInput(page, action.Selector)
		if target == nil {
			return false
		}
		if _, err := target.SelectOption(playwright.SelectOptionValues{Labels: &[]string{action.Value}}); err == nil {
			return true
		}
		_, err := target.SelectOption(playwright.SelectOptionValues{Values: &[]string{action.Value}})
		return err == nil
	case models.ActionCheck:
		target := i.resolveInput(page, action.Selector)
		if target == nil {
			return false
		}
		if err := target.Check(); err == nil {
			return true
		}
		return i.human.Click(page, target) == nil
	case models.ActionClick:
		target := i.resolveClickable(page, action.Selector)
		if target == nil {
			return false
		}
		return i.human.Click(page, target) == nil
	case ActionCaptchaGrid:
		index, _ := strconv.Atoi(action.Selector)
		return i.clickCaptchaTile(page, index, evidence)
	case ActionCaptchaSubmit:
		for _, selector := range []string{"#recaptcha-verify-button", "button:has-text('Verify')", "button:has-text('Submit')", ".button-submit"} {
			button := page.Locator(selector).First()
			if visible, _ := button.IsVisible(); visible {
				return i.human.Click(page, button) == nil
			}
		}
		return false
	}
	return false
}

// resolveInput prefers an accessible-label lookup, then falls back to
// treating the target as a raw selector, then a placeholder match.
func (i *InstructionInterpreter) resolveInput(page playwright.Page, target string) playwright.Locator {
	byLabel := page.GetByLabel(target).First()
	if visible, _ := byLabel.IsVisible(); visible {
		return byLabel
	}
	if looksLikeSelector(target) {
		raw := page.Locator(target).First()
		if visible, _ := raw.IsVisible(); visible {
			return raw
		}
	}
	byPlaceholder := page.Locator(fmt.Sprintf("input[placeholder*='%s' i], textarea[placeholder*='%s' i]", cssEscape(target), cssEscape(target))).First()
	if visible, _ := byPlaceholder.IsVisible(); visible {
		return byPlaceholder
	}
	return nil
}

func (i *InstructionInterpreter) resolveClickable(page playwright.Page, target string) playwright.Locator {
	if looksLikeSelector(target) {
		raw := page.Locator(target).First()
		if visible, _ := raw.IsVisible(); visible {
			return raw
		}
	}
	for _, pattern := range []string{
		"button:has-text('%s')",
		"a:has-text('%s')",
		"input[type='submit'][value*='%s' i]",
		"[role='button']:has-text('%s')",
		"text='%s'",
	} {
		candidate := page.Locator(fmt.Sprintf(pattern, cssEscape(target))).First()
		if visible, _ := candidate.IsVisible(); visible {
			return candidate
		}
	}
	return nil
}

// clickCaptchaTile tries the plausible grid-image selectors, falling back to
// the nth visible image on the page.
func (i *InstructionInterpreter) clickCaptchaTile(page playwright.Page, index int, evidence *models.EvidenceBundle) bool {
	for _, selector := range []string{
		".rc-imageselect-tile",
		"table.rc-imageselect-table-33 td",
		"table.rc-imageselect-table-44 td",
		".task-image",
		".challenge-container img",
	} {
		tiles := page.Locator(selector)
		count, err := tiles.Count()
		if err != nil || count <= index {
			continue
		}
		if err := i.human.Click(page, tiles.Nth(index)); err == nil {
			evidence.Logf("Clicked captcha tile %d via %s", index, selector)
			return true
		}
	}
	images := page.Locator("img:visible")
	count, err := images.Count()
	if err != nil || count <= index {
		return false
	}
	return i.human.Click(page, images.Nth(index)) == nil
}

func looksLikeSelector(target string) bool {
	return strings.ContainsAny(target, "#.[>:") || strings.HasPrefix(target, "//")
}

// cssEscape keeps quotes out of interpolated selector text.
func cssEscape(s string) string {
	return strings.NewReplacer("'", "\\'", "\"", "\\\"").Replace(s)
}
