package services

import (
	"log"

	"github.com/playwright-community/playwright-go"
)

// AutoFixer sweeps the form for unmet native-validation constraints and
// supplies neutral defaults. Every sweep is independent and best-effort; one
// stubborn control never blocks the rest.
type AutoFixer struct {
	human *HumanSimulator
}

func NewAutoFixer(human *HumanSimulator) *AutoFixer {
	return &AutoFixer{human: human}
}

const fixPlaceholderSelects = `
() => {
	let fixed = 0;
	document.querySelectorAll('select').forEach(sel => {
		if (sel.selectedIndex > 0 && sel.value !== '') return;
		const first = sel.options[sel.selectedIndex];
		const placeholderish = !first || first.value === '' ||
			/choose|select|please|pick|--/i.test(first.text);
		if (!placeholderish && !sel.required) return;
		for (let i = 0; i < sel.options.length; i++) {
			const opt = sel.options[i];
			if (opt.value !== '' && !/choose|select|please|pick|--/i.test(opt.text)) {
				sel.selectedIndex = i;
				sel.dispatchEvent(new Event('change', { bubbles: true }));
				fixed++;
				break;
			}
		}
	});
	return fixed;
}`

const fixRequiredCheckboxes = `
() => {
	let fixed = 0;
	document.querySelectorAll("input[type='checkbox'][required]").forEach(cb => {
		if (!cb.checked) {
			cb.click();
			fixed++;
		}
	});
	return fixed;
}`

const fixRequiredRadios = `
() => {
	let fixed = 0;
	const seen = new Set();
	document.querySelectorAll("input[type='radio'][required]").forEach(radio => {
		if (seen.has(radio.name)) return;
		seen.add(radio.name);
		const group = document.querySelectorAll("input[type='radio'][name='" + CSS.escape(radio.name) + "']");
		const anyChecked = Array.from(group).some(r => r.checked);
		if (!anyChecked && group.length > 0) {
			group[0].click();
			fixed++;
		}
	});
	return fixed;
}`

const fixEmptyRequiredText = `
(filler) => {
	let fixed = 0;
	document.querySelectorAll("input[required], textarea[required]").forEach(el => {
		const type = (el.getAttribute('type') || 'text').toLowerCase();
		if (['checkbox', 'radio', 'file', 'submit', 'button', 'hidden'].includes(type)) return;
		if (el.value.trim() !== '') return;
		el.value = filler;
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		fixed++;
	});
	return fixed;
}`

const countInvalidControls = `
() => document.querySelectorAll('input:invalid, select:invalid, textarea:invalid').length`

// FixRequiredFields runs the sweeps in order: placeholder selects, ARIA
// comboboxes, required checkboxes, required radio groups, empty required
// text controls. Returns the number of fixes applied, for telemetry only.
func (f *AutoFixer) FixRequiredFields(page playwright.Page) int {
	if page == nil {
		return 0
	}
	fixed := 0

	fixed += f.evalCount(page, fixPlaceholderSelects)
	fixed += f.fixAriaComboboxes(page)
	fixed += f.evalCount(page, fixRequiredCheckboxes)
	fixed += f.evalCount(page, fixRequiredRadios)

	if n, err := page.Evaluate(fixEmptyRequiredText, "N/A"); err == nil {
		fixed += toInt(n)
	} else {
		log.Printf("Required-text sweep failed: %v", err)
	}

	if fixed > 0 {
		log.Printf("Auto-fixed %d required controls", fixed)
	}
	return fixed
}

// fixAriaComboboxes handles custom widgets native validation cannot see:
// open, move to the first option, confirm.
func (f *AutoFixer) fixAriaComboboxes(page playwright.Page) int {
	fixed := 0
	combos := page.Locator("[role='combobox'][aria-required='true'], [role='combobox'][required]")
	count, err := combos.Count()
	if err != nil {
		return 0
	}
	for i := 0; i < count; i++ {
		combo := combos.Nth(i)
		if expanded, _ := combo.GetAttribute("aria-expanded"); expanded == "true" {
			continue
		}
		if value, _ := combo.GetAttribute("aria-activedescendant"); value != "" {
			continue
		}
		if err := f.human.Click(page, combo); err != nil {
			continue
		}
		f.human.Think("decision")
		if err := combo.Press("ArrowDown"); err != nil {
			continue
		}
		if err := combo.Press("Enter"); err != nil {
			continue
		}
		fixed++
	}
	return fixed
}

// RemainingViolations reports how many controls still fail native validation.
func (f *AutoFixer) RemainingViolations(page playwright.Page) int {
	if page == nil {
		return 0
	}
	n, err := page.Evaluate(countInvalidControls)
	if err != nil {
		return 0
	}
	return toInt(n)
}

// TriggerNativeValidation asks each form to surface its validation UI so
// outcome detection and the vision model can see unmet constraints.
func (f *AutoFixer) TriggerNativeValidation(page playwright.Page) {
	if page == nil {
		return
	}
	_, err := page.Evaluate(`() => {
		document.querySelectorAll('form').forEach(form => {
			try { form.reportValidity(); } catch (e) {}
		});
	}`)
	if err != nil {
		log.Printf("Could not trigger native validation: %v", err)
	}
}

func (f *AutoFixer) evalCount(page playwright.Page, script string) int {
	n, err := page.Evaluate(script)
	if err != nil {
		log.Printf("Autofix sweep failed: %v", err)
		return 0
	}
	return toInt(n)
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
