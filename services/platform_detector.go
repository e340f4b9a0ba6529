package services

import (
	"net/url"
	"strings"

	"github.com/playwright-community/playwright-go"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"jobrunner/models"
)

// Confidence levels for a platform classification.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
	ConfidenceNone   = "none"
)

// SelectorSet is the attribute-pattern selectors to try for a platform.
type SelectorSet struct {
	FirstName []string
	LastName  []string
	FullName  []string
	Email     []string
	Phone     []string
	Location  []string
	Resume    []string
	Submit    []string
}

// Platform is a classified Applicant Tracking System and the selectors to
// drive it with.
type Platform struct {
	Name       string
	Confidence string
	Selectors  SelectorSet
}

// PlatformDetector classifies the ATS hosting a form by URL substring first
// (high confidence), then HTML markers (medium), then falls back to a
// generic selector set.
type PlatformDetector struct {
	titler cases.Caser
}

func NewPlatformDetector() *PlatformDetector {
	return &PlatformDetector{titler: cases.Title(language.English)}
}

type platformRule struct {
	name       string
	urlTokens  []string
	htmlTokens []string
}

var platformRules = []platformRule{
	{
		name:       "Greenhouse",
		urlTokens:  []string{"greenhouse.io", "gh_jid="},
		htmlTokens: []string{"boards.greenhouse.io", "grnhse", "greenhouse-job-board"},
	},
	{
		name:       "Lever",
		urlTokens:  []string{"lever.co"},
		htmlTokens: []string{"lever-job", "data-qa=\"posting", "jobs.lever.co"},
	},
	{
		name:       "Workday",
		urlTokens:  []string{"myworkdayjobs.com", "workday"},
		htmlTokens: []string{"wd-browser", "data-automation-id", "workday"},
	},
	{
		name:       "Ashby",
		urlTokens:  []string{"ashbyhq.com"},
		htmlTokens: []string{"ashby_embed", "_jobPosting_"},
	},
	{
		name:       "SmartRecruiters",
		urlTokens:  []string{"smartrecruiters.com"},
		htmlTokens: []string{"smartrecruiters", "sr-job"},
	},
	{
		name:       "BambooHR",
		urlTokens:  []string{"bamboohr.com"},
		htmlTokens: []string{"bamboohr", "BambooHR-ATS"},
	},
	{
		name:       "iCIMS",
		urlTokens:  []string{"icims.com"},
		htmlTokens: []string{"icims_content_iframe", "iCIMS"},
	},
	{
		name:       "Taleo",
		urlTokens:  []string{"taleo.net"},
		htmlTokens: []string{"taleo", "requisitionDescriptionInterface"},
	},
}

// Detect classifies from the page URL and rendered HTML. It never fails;
// unmatched pages come back as a generic platform with the fallback selector
// set.
func (d *PlatformDetector) Detect(pageURL, html string) Platform {
	lowURL := strings.ToLower(pageURL)
	lowHTML := strings.ToLower(html)

	for _, rule := range platformRules {
		for _, token := range rule.urlTokens {
			if strings.Contains(lowURL, strings.ToLower(token)) {
				return Platform{Name: rule.name, Confidence: ConfidenceHigh, Selectors: selectorsFor(rule.name)}
			}
		}
	}
	for _, rule := range platformRules {
		for _, token := range rule.htmlTokens {
			if strings.Contains(lowHTML, strings.ToLower(token)) {
				return Platform{Name: rule.name, Confidence: ConfidenceMedium, Selectors: selectorsFor(rule.name)}
			}
		}
	}

	if parsed, err := url.Parse(pageURL); err == nil && parsed.Hostname() != "" {
		host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
		company := strings.Split(host, ".")[0]
		return Platform{
			Name:       d.titler.String(company) + " Careers",
			Confidence: ConfidenceLow,
			Selectors:  genericSelectors(),
		}
	}
	return Platform{Name: "Unknown", Confidence: ConfidenceNone, Selectors: genericSelectors()}
}

func genericSelectors() SelectorSet {
	return SelectorSet{
		FirstName: []string{"input[name*='first' i]", "input[id*='first' i]", "input[placeholder*='First' i]", "input[aria-label*='First' i]"},
		LastName:  []string{"input[name*='last' i]", "input[id*='last' i]", "input[placeholder*='Last' i]", "input[aria-label*='Last' i]"},
		FullName:  []string{"input[name='name']", "input[name*='full_name' i]", "input[autocomplete='name']", "input[placeholder*='Name' i]", "input[aria-label*='Name' i]"},
		Email:     []string{"input[type='email']", "input[name*='email' i]", "input[placeholder*='Email' i]", "input[aria-label*='Email' i]"},
		Phone:     []string{"input[type='tel']", "input[name*='phone' i]", "input[placeholder*='Phone' i]", "input[aria-label*='Phone' i]"},
		Location:  []string{"input[name*='location' i]", "input[name*='city' i]", "input[placeholder*='Location' i]", "input[placeholder*='City' i]", "input[aria-label*='Location' i]"},
		Resume:    []string{"input[type='file']", "input[name*='resume' i]", "input[name*='cv' i]", "input[accept*='pdf']"},
		Submit:    []string{"button[type='submit']", "input[type='submit']", "button:has-text('Submit')", "button:has-text('Apply')"},
	}
}

func selectorsFor(name string) SelectorSet {
	set := genericSelectors()
	switch name {
	case "Greenhouse":
		set.FirstName = append([]string{"input#first_name", "input[name='job_application[first_name]']"}, set.FirstName...)
		set.LastName = append([]string{"input#last_name", "input[name='job_application[last_name]']"}, set.LastName...)
		set.Email = append([]string{"input#email", "input[name='job_application[email]']"}, set.Email...)
		set.Phone = append([]string{"input#phone", "input[name='job_application[phone]']"}, set.Phone...)
		set.Resume = append([]string{"input#resume", "input[name='job_application[resume]']"}, set.Resume...)
		set.Submit = append([]string{"input#submit_app", "button#submit_app"}, set.Submit...)
	case "Lever":
		set.FullName = append([]string{"input[name='name']"}, set.FullName...)
		set.Email = append([]string{"input[name='email']"}, set.Email...)
		set.Phone = append([]string{"input[name='phone']"}, set.Phone...)
		set.Location = append([]string{"input[name='location']"}, set.Location...)
		set.Resume = append([]string{"input[name='resume']"}, set.Resume...)
		set.Submit = append([]string{"button[data-qa='btn-submit']"}, set.Submit...)
	case "Workday":
		set.Email = append([]string{"input[data-automation-id='email']"}, set.Email...)
		set.Submit = append([]string{"button[data-automation-id='bottom-navigation-next-button']", "button[data-automation-id='submitButton']"}, set.Submit...)
	case "Ashby":
		set.FullName = append([]string{"input[id='_systemfield_name']"}, set.FullName...)
		set.Email = append([]string{"input[id='_systemfield_email']"}, set.Email...)
	}
	return set
}

// ApplyPlatformExtras runs the opportunistic platform-specific handlers, such
// as the "how did you hear about us" control on Greenhouse boards or the URLs
// block on Lever postings. These never gate success.
func (d *PlatformDetector) ApplyPlatformExtras(page playwright.Page, platform Platform, req *models.ApplicationRequest, state *models.ApplicationState) {
	if page == nil {
		return
	}
	switch platform.Name {
	case "Greenhouse":
		source := page.Locator("select#how_did_you_hear_about_us, select[name*='how_did_you_hear' i]").First()
		if visible, _ := source.IsVisible(); visible {
			if _, err := source.SelectOption(playwright.SelectOptionValues{Indexes: &[]int{1}}); err == nil {
				state.MarkFilled("how_did_you_hear")
			}
		}
	case "Lever":
		if req.PortfolioURL == "" {
			return
		}
		portfolio := page.Locator("input[name='urls[Portfolio]'], input[name*='portfolio' i]").First()
		if visible, _ := portfolio.IsVisible(); visible {
			if err := portfolio.Fill(req.PortfolioURL); err == nil {
				state.MarkFilled("portfolio")
			}
		}
	}
}
