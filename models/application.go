package models

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// ApplicationRequest is the inbound payload for one submission run.
type ApplicationRequest struct {
	JobURL            string `json:"job_url"`
	FullName          string `json:"full_name"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	Location          string `json:"location"`
	CurrentCompany    string `json:"current_company"`
	CurrentLocation   string `json:"current_location"`
	SalaryExpectation string `json:"salary_expectation"`
	NoticePeriod      string `json:"notice_period"`
	Note              string `json:"note"`
	PortfolioURL      string `json:"portfolio_url,omitempty"`

	ResumeURL  string `json:"resume_url,omitempty"`
	ResumeData []byte `json:"resume_data,omitempty"`

	// PlanOnly fills the form but never enters the submit loop.
	PlanOnly    bool `json:"plan_only"`
	AllowSubmit bool `json:"allow_submit"`

	// Per-request credentials override the environment configuration.
	GeminiAPIKey     string `json:"gemini_api_key,omitempty"`
	SolverAPIKey     string `json:"solver_api_key,omitempty"`
	ProxyVendorKey   string `json:"proxy_vendor_key,omitempty"`
	ProxyVendorWSURL string `json:"proxy_vendor_endpoint,omitempty"`
}

// MissingFields returns the mandatory fields absent from the request.
// job_url and email are hard preconditions; everything else is optional.
func (r *ApplicationRequest) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(r.JobURL) == "" {
		missing = append(missing, "job_url")
	}
	if strings.TrimSpace(r.Email) == "" {
		missing = append(missing, "email")
	}
	return missing
}

// FieldValues maps logical field names to the values the form filler should
// write. Empty values are kept out of the map so the filler can skip them.
func (r *ApplicationRequest) FieldValues() map[string]string {
	fields := map[string]string{
		"full_name":          r.FullName,
		"email":              r.Email,
		"phone":              r.Phone,
		"location":           r.Location,
		"current_company":    r.CurrentCompany,
		"current_location":   r.CurrentLocation,
		"salary_expectation": r.SalaryExpectation,
		"notice_period":      r.NoticePeriod,
		"note":               r.Note,
		"portfolio":          r.PortfolioURL,
	}
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			delete(fields, name)
		}
	}
	return fields
}

// Step names for the run record.
const (
	StepInitial     = "initial"
	StepPageLoaded  = "page_loaded"
	StepFormOpened  = "form_opened"
	StepFillingForm = "filling_form"
	StepSubmitted   = "submitted"
	StepDone        = "done"
)

// ApplicationState is the mutable record of a single run. It is owned by
// exactly one orchestrator run and never shared across jobs.
type ApplicationState struct {
	Step          string   `json:"step"`
	FilledFields  []string `json:"filled_fields"`
	Issues        []string `json:"issues"`
	CaptchaSolved bool     `json:"captcha_solved"`
	Platform      string   `json:"platform"`

	filled map[string]bool
}

func NewApplicationState() *ApplicationState {
	return &ApplicationState{
		Step:   StepInitial,
		filled: make(map[string]bool),
	}
}

// MarkFilled records a successfully filled logical field. Marking the same
// field twice leaves the set unchanged.
func (s *ApplicationState) MarkFilled(field string) {
	if s.filled == nil {
		s.filled = make(map[string]bool)
	}
	if s.filled[field] {
		return
	}
	s.filled[field] = true
	s.FilledFields = append(s.FilledFields, field)
}

func (s *ApplicationState) IsFilled(field string) bool {
	return s.filled[field]
}

func (s *ApplicationState) AddIssue(issue string) {
	s.Issues = append(s.Issues, issue)
}

func (s *ApplicationState) Advance(step string) {
	s.Step = step
}

// Error categories used by the retry policy.
const (
	CategoryCaptcha      = "captcha"
	CategoryNetwork      = "network"
	CategoryFormNotFound = "form_not_found"
	CategorySubmit       = "submit"
	CategoryDefault      = "default"
)

type retryRule struct {
	MaxAttempts int
	Delay       time.Duration
}

// RetryPolicy tracks per-category attempt counters against bounded budgets.
// Attempts are zero-indexed: a category with MaxAttempts=3 allows exactly
// three ShouldRetry calls to return true.
type RetryPolicy struct {
	rules    map[string]retryRule
	attempts map[string]int
	sleep    func(time.Duration)
}

func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		rules: map[string]retryRule{
			CategoryCaptcha:      {MaxAttempts: 3, Delay: 2 * time.Second},
			CategoryNetwork:      {MaxAttempts: 3, Delay: 5 * time.Second},
			CategoryFormNotFound: {MaxAttempts: 2, Delay: 3 * time.Second},
			CategorySubmit:       {MaxAttempts: 2, Delay: 3 * time.Second},
			CategoryDefault:      {MaxAttempts: 2, Delay: 2 * time.Second},
		},
		attempts: make(map[string]int),
		sleep:    time.Sleep,
	}
}

// WithSleep swaps the delay function, letting tests run the policy with zero
// real delay. Returns the policy for chaining.
func (p *RetryPolicy) WithSleep(sleep func(time.Duration)) *RetryPolicy {
	p.sleep = sleep
	return p
}

// ShouldRetry consumes one attempt for the category. While budget remains it
// sleeps the category delay and returns true; once exhausted it returns false
// immediately and never sleeps again.
func (p *RetryPolicy) ShouldRetry(category string) bool {
	rule, ok := p.rules[category]
	if !ok {
		rule = p.rules[CategoryDefault]
	}
	if p.attempts[category] >= rule.MaxAttempts {
		return false
	}
	p.attempts[category]++
	p.sleep(rule.Delay)
	return true
}

func (p *RetryPolicy) Attempts(category string) int {
	return p.attempts[category]
}

func (p *RetryPolicy) Reset(category string) {
	delete(p.attempts, category)
}

// CAPTCHA challenge types and outcomes.
const (
	CaptchaRecaptcha = "recaptcha"
	CaptchaHcaptcha  = "hcaptcha"
	CaptchaText      = "text"
	CaptchaAudio     = "audio"
	CaptchaNone      = "none"

	CaptchaSolved      = "solved"
	CaptchaNotDetected = "not_detected"
	CaptchaUnsolved    = "unsolved"
)

// CaptchaChallenge is the result of one pass through the resolution chain.
type CaptchaChallenge struct {
	Type    string `json:"type"`
	SiteKey string `json:"site_key,omitempty"`
	Outcome string `json:"outcome"`
}

// Corrective action kinds understood by the instruction interpreter.
const (
	ActionFill   = "fill"
	ActionSelect = "select"
	ActionCheck  = "check"
	ActionClick  = "click"
)

// CorrectiveAction is one page operation derived from a vision verdict.
// Structured actions carry Action/Selector/Value; free-text directives arrive
// in Raw and are normalized by the interpreter before execution.
type CorrectiveAction struct {
	Action   string `json:"action,omitempty"`
	Selector string `json:"selector,omitempty"`
	Value    string `json:"value,omitempty"`
	Raw      string `json:"raw,omitempty"`
}

// VisionVerdict is the structured judgment of the vision model for one
// submission attempt. It is never persisted beyond the attempt.
type VisionVerdict struct {
	Success      bool               `json:"success"`
	Reason       string             `json:"reason"`
	Instructions []CorrectiveAction `json:"instructions"`
	CaptchaType  string             `json:"captcha_type,omitempty"`
}

// EvidenceBundle is the audit trail of one run: screenshots, the full log
// transcript, per-step latencies and per-category error counts. It is created
// at run start and returned verbatim regardless of outcome.
type EvidenceBundle struct {
	PreSubmitShots  []string         `json:"pre_submit_screenshots"`
	PostSubmitShots []string         `json:"post_submit_screenshots"`
	Log             []string         `json:"log"`
	StepLatencies   map[string]int64 `json:"step_latencies_ms"`
	ErrorCounts     map[string]int   `json:"error_counts"`

	mu sync.Mutex
}

func NewEvidenceBundle() *EvidenceBundle {
	return &EvidenceBundle{
		StepLatencies: make(map[string]int64),
		ErrorCounts:   make(map[string]int),
	}
}

// Logf appends a timestamped line to the transcript and mirrors it to the
// process log.
func (e *EvidenceBundle) Logf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	log.Printf("%s", line)
	e.mu.Lock()
	e.Log = append(e.Log, fmt.Sprintf("%s %s", time.Now().Format(time.RFC3339), line))
	e.mu.Unlock()
}

func (e *EvidenceBundle) RecordLatency(step string, elapsed time.Duration) {
	e.mu.Lock()
	e.StepLatencies[step] += elapsed.Milliseconds()
	e.mu.Unlock()
}

func (e *EvidenceBundle) CountError(category string) {
	e.mu.Lock()
	e.ErrorCounts[category]++
	e.mu.Unlock()
}

func (e *EvidenceBundle) AddScreenshot(phase, ref string) {
	e.mu.Lock()
	if phase == "pre_submit" {
		e.PreSubmitShots = append(e.PreSubmitShots, ref)
	} else {
		e.PostSubmitShots = append(e.PostSubmitShots, ref)
	}
	e.mu.Unlock()
}

// Terminal run statuses.
const (
	StatusMissingFields     = "missing_fields"
	StatusPlannedOnly       = "planned_only"
	StatusAwaitingConsent   = "awaiting_consent"
	StatusSubmitted         = "submitted"
	StatusNotConfirmed      = "not_confirmed"
	StatusMaxRetriesReached = "max_retries_reached"
	StatusError             = "error"
)

// ApplicationResult is the normalized outcome of a run, produced on every
// terminal path including fatal errors.
type ApplicationResult struct {
	RunID     string            `json:"run_id"`
	OK        bool              `json:"ok"`
	Status    string            `json:"status"`
	Platform  string            `json:"platform,omitempty"`
	ElapsedMS int64             `json:"elapsed_ms"`
	Evidence  *EvidenceBundle   `json:"evidence,omitempty"`
	State     *ApplicationState `json:"state,omitempty"`
	Error     string            `json:"error,omitempty"`
}
