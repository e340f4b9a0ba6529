package services

import (
	"log"
	"os"

	"github.com/playwright-community/playwright-go"

	"jobrunner/models"
)

// maxWizardHops bounds how many "next/continue" steps a multi-page form is
// advanced through per loop iteration.
const maxWizardHops = 3

var submitSelectors = []string{
	"button[type='submit']:visible",
	"input[type='submit']:visible",
	"button:has-text('Submit Application'):visible",
	"button:has-text('Submit'):visible",
	"button:has-text('Apply'):visible",
	"button:has-text('Send Application'):visible",
	"button[class*='submit']:visible",
	"button[id*='submit']:visible",
	"a:has-text('Submit Application'):visible",
}

var wizardNextSelectors = []string{
	"button:has-text('Next'):visible",
	"button:has-text('Continue'):visible",
	"button:has-text('Save and Continue'):visible",
	"button[data-automation-id='bottom-navigation-next-button']",
	"a:has-text('Next'):visible",
}

var expandSectionSelectors = []string{
	"button[aria-expanded='false']",
	"[role='button'][aria-expanded='false']",
	"summary",
	"button:has-text('Show more'):visible",
	"a:has-text('Show more'):visible",
}

// SubmissionService drives the submit side of a run: expanding collapsed
// sections, advancing wizard steps, uploading the resume and clicking the
// submit control itself.
type SubmissionService struct {
	human *HumanSimulator
}

func NewSubmissionService(human *HumanSimulator) *SubmissionService {
	return &SubmissionService{human: human}
}

// ClickSubmit finds an enabled submit control and clicks it, trying the
// detected platform's submit selectors before the generic list. Returns false
// when no clickable submit control exists on the page.
func (s *SubmissionService) ClickSubmit(page playwright.Page, platformSubmit []string, evidence *models.EvidenceBundle) bool {
	if page == nil {
		return false
	}
	for _, selector := range append(append([]string{}, platformSubmit...), submitSelectors...) {
		button := page.Locator(selector).First()
		if visible, _ := button.IsVisible(); !visible {
			continue
		}
		if disabled, _ := button.IsDisabled(); disabled {
			evidence.Logf("Submit control %s is disabled", selector)
			continue
		}
		text, _ := button.TextContent()
		s.human.Think("review")
		if err := s.human.Click(page, button); err == nil {
			evidence.Logf("Clicked submit control %s (text: %s)", selector, text)
			return true
		}
		if err := button.Click(); err == nil {
			evidence.Logf("Clicked submit control %s directly", selector)
			return true
		}
	}
	evidence.Logf("No submit control found")
	return false
}

// AdvanceWizard clicks recognized next/continue controls, bounded to
// maxWizardHops. Returns the number of hops taken.
func (s *SubmissionService) AdvanceWizard(page playwright.Page, evidence *models.EvidenceBundle) int {
	if page == nil {
		return 0
	}
	hops := 0
	for hops < maxWizardHops {
		advanced := false
		for _, selector := range wizardNextSelectors {
			button := page.Locator(selector).First()
			if visible, _ := button.IsVisible(); !visible {
				continue
			}
			if disabled, _ := button.IsDisabled(); disabled {
				continue
			}
			if err := s.human.Click(page, button); err != nil {
				continue
			}
			hops++
			advanced = true
			evidence.Logf("Advanced wizard step via %s", selector)
			s.human.Think("decision")
			break
		}
		if !advanced {
			break
		}
	}
	return hops
}

// ExpandSections opens collapsed panels so hidden required controls become
// reachable. Best-effort throughout.
func (s *SubmissionService) ExpandSections(page playwright.Page) {
	if page == nil {
		return
	}
	for _, selector := range expandSectionSelectors {
		toggles := page.Locator(selector)
		count, err := toggles.Count()
		if err != nil {
			continue
		}
		// Bounded to keep a pathological page from dominating the iteration.
		if count > 5 {
			count = 5
		}
		for i := 0; i < count; i++ {
			toggle := toggles.Nth(i)
			if visible, _ := toggle.IsVisible(); !visible {
				continue
			}
			if err := toggle.Click(); err != nil {
				continue
			}
		}
	}
}

// UploadResume writes the resume bytes to a scratch file and attaches it to
// the first matching file input, preferring the detected platform's file
// selectors.
func (s *SubmissionService) UploadResume(page playwright.Page, resume []byte, fileSelectors []string, evidence *models.EvidenceBundle) bool {
	if page == nil || len(resume) == 0 {
		return false
	}
	scratch, err := stageResume(resume)
	if err != nil {
		log.Printf("Could not stage resume for upload: %v", err)
		return false
	}
	defer os.Remove(scratch)

	for _, selector := range append(append([]string{}, fileSelectors...),
		"input[type='file']",
		"input[name*='resume' i]",
		"input[name*='cv' i]",
		"input[accept*='pdf']",
	) {
		input := page.Locator(selector).First()
		count, _ := input.Count()
		if count == 0 {
			continue
		}
		if err := input.SetInputFiles(scratch); err == nil {
			evidence.Logf("Uploaded resume via %s", selector)
			return true
		}
	}
	return false
}

// stageResume writes the resume bytes to a unique scratch file, so concurrent
// runs never share an upload path.
func stageResume(resume []byte) (string, error) {
	scratch, err := os.CreateTemp("", "resume_*.pdf")
	if err != nil {
		return "", err
	}
	if _, err := scratch.Write(resume); err != nil {
		scratch.Close()
		os.Remove(scratch.Name())
		return "", err
	}
	if err := scratch.Close(); err != nil {
		os.Remove(scratch.Name())
		return "", err
	}
	return scratch.Name(), nil
}
