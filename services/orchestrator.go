package services

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"jobrunner/config"
	"jobrunner/models"
	"jobrunner/parsers"
)

// MaxRetries bounds the inner submit loop: captcha clearance, submit attempt,
// outcome check, corrective replay.
const MaxRetries = 5

// Collaborator contracts. The orchestrator only needs these slices of the
// concrete services, which keeps the state machine testable without a
// browser.
type pageSession interface {
	Page() playwright.Page
	Navigate(url string) error
	Screenshot(label string) (string, error)
	ScreenshotBytes() ([]byte, error)
	Close()
}

type formFiller interface {
	FillFields(page playwright.Page, fields map[string]string, selectors SelectorSet, state *models.ApplicationState, evidence *models.EvidenceBundle) int
}

type requiredFixer interface {
	FixRequiredFields(page playwright.Page) int
	RemainingViolations(page playwright.Page) int
	TriggerNativeValidation(page playwright.Page)
}

type captchaChain interface {
	Resolve(page playwright.Page, pageURL string, evidence *models.EvidenceBundle) models.CaptchaChallenge
}

type outcomeChecker interface {
	HeuristicSuccess(page playwright.Page) bool
}

type verdictProvider interface {
	AnalyzeSubmission(screenshot []byte, resumeText string, fields map[string]string) models.VisionVerdict
}

type instructionRunner interface {
	Execute(page playwright.Page, actions []models.CorrectiveAction, evidence *models.EvidenceBundle) bool
}

type submitDriver interface {
	ClickSubmit(page playwright.Page, platformSubmit []string, evidence *models.EvidenceBundle) bool
	AdvanceWizard(page playwright.Page, evidence *models.EvidenceBundle) int
	ExpandSections(page playwright.Page)
	UploadResume(page playwright.Page, resume []byte, fileSelectors []string, evidence *models.EvidenceBundle) bool
}

type platformClassifier interface {
	Detect(pageURL, html string) Platform
	ApplyPlatformExtras(page playwright.Page, platform Platform, req *models.ApplicationRequest, state *models.ApplicationState)
}

type resumeSource interface {
	Fetch(resumeURL string) []byte
	Extract(data []byte) (map[string]string, string)
}

// Orchestrator is the top-level state machine for one application run. All
// per-run state lives in the run itself; the orchestrator is safe to share
// across concurrent requests.
type Orchestrator struct {
	cfg   config.AppConfig
	store *EvidenceStore
	runs  *models.RunModel

	newSession func(vendorKey, vendorWSURL string) (pageSession, error)
	captchaFor func(solverKey, vendorKey string) captchaChain
	visionFor  func(apiKey string) verdictProvider
	newRetry   func() *models.RetryPolicy

	filler   formFiller
	fixer    requiredFixer
	outcome  outcomeChecker
	interp   instructionRunner
	submit   submitDriver
	detector platformClassifier
	resumes  resumeSource
	human    *HumanSimulator
}

func NewOrchestrator(cfg config.AppConfig, store *EvidenceStore, runs *models.RunModel) *Orchestrator {
	human := NewHumanSimulator()
	factory := NewBrowserFactory(cfg)
	return &Orchestrator{
		cfg:   cfg,
		store: store,
		runs:  runs,
		newSession: func(vendorKey, vendorWSURL string) (pageSession, error) {
			return factory.NewSession(vendorKey, vendorWSURL)
		},
		captchaFor: func(solverKey, vendorKey string) captchaChain {
			return NewCaptchaResolver(solverKey, vendorKey, human)
		},
		visionFor: func(apiKey string) verdictProvider {
			return NewVisionClient(apiKey)
		},
		newRetry: models.NewRetryPolicy,
		filler:   NewFieldResolver(human),
		fixer:    NewAutoFixer(human),
		outcome:  NewOutcomeDetector(),
		interp:   NewInstructionInterpreter(human),
		submit:   NewSubmissionService(human),
		detector: NewPlatformDetector(),
		resumes:  parsers.NewResumeExtractor(),
		human:    human,
	}
}

// Run executes one application end to end and always produces a result, even
// on a fatal panic anywhere in the pipeline.
func (o *Orchestrator) Run(req *models.ApplicationRequest) (result *models.ApplicationResult) {
	started := time.Now()
	state := models.NewApplicationState()
	evidence := models.NewEvidenceBundle()
	result = &models.ApplicationResult{
		RunID:    uuid.NewString(),
		Status:   models.StatusError,
		Evidence: evidence,
		State:    state,
	}

	defer func() {
		if r := recover(); r != nil {
			evidence.Logf("Fatal error in run: %v\n%s", r, debug.Stack())
			result.OK = false
			result.Status = models.StatusError
			result.Error = fmt.Sprintf("unexpected failure: %v", r)
		}
		result.ElapsedMS = time.Since(started).Milliseconds()
		state.Advance(models.StepDone)
		if err := o.runs.Insert(result, req.JobURL); err != nil {
			evidence.Logf("Could not persist run record: %v", err)
		}
	}()

	// Precondition check happens before any browser session exists.
	if missing := req.MissingFields(); len(missing) > 0 {
		evidence.Logf("Request rejected, missing mandatory fields: %v", missing)
		result.Status = models.StatusMissingFields
		result.Error = fmt.Sprintf("missing mandatory fields: %v", missing)
		return result
	}

	fields := req.FieldValues()
	resumeBytes := req.ResumeData
	if len(resumeBytes) == 0 && req.ResumeURL != "" {
		resumeBytes = o.resumes.Fetch(req.ResumeURL)
	}
	inferred, resumeText := o.resumes.Extract(resumeBytes)
	for name, value := range inferred {
		if _, known := fields[name]; !known {
			fields[name] = value
			evidence.Logf("Field %s inferred from resume", name)
		}
	}

	retry := o.newRetry()

	session, err := o.newSession(o.vendorKey(req), o.vendorWSURL(req))
	if err != nil {
		evidence.Logf("Could not acquire a browser session: %v", err)
		evidence.CountError(models.CategoryNetwork)
		result.Error = err.Error()
		return result
	}
	defer session.Close()

	navStart := time.Now()
	for {
		err = session.Navigate(req.JobURL)
		if err == nil {
			break
		}
		evidence.Logf("Navigation failed: %v", err)
		evidence.CountError(models.CategoryNetwork)
		if !retry.ShouldRetry(models.CategoryNetwork) {
			result.Error = fmt.Sprintf("navigation failed: %v", err)
			return result
		}
	}
	evidence.RecordLatency("navigate", time.Since(navStart))
	state.Advance(models.StepPageLoaded)
	evidence.Logf("Loaded %s", req.JobURL)

	page := session.Page()
	o.human.ReadPage(page)

	detectStart := time.Now()
	html := ""
	if page != nil {
		html, _ = page.Content()
	}
	platform := o.detector.Detect(req.JobURL, html)
	evidence.RecordLatency("platform_detect", time.Since(detectStart))
	state.Platform = platform.Name
	result.Platform = platform.Name
	evidence.Logf("Detected platform %s (confidence: %s)", platform.Name, platform.Confidence)

	state.Advance(models.StepFormOpened)
	o.submit.ExpandSections(page)

	state.Advance(models.StepFillingForm)
	fillStart := time.Now()
	filled := o.filler.FillFields(page, fields, platform.Selectors, state, evidence)
	evidence.RecordLatency("fill_form", time.Since(fillStart))
	evidence.Logf("Filled %d of %d fields", filled, len(fields))

	if len(resumeBytes) > 0 {
		if o.submit.UploadResume(page, resumeBytes, platform.Selectors.Resume, evidence) {
			state.MarkFilled("resume")
		}
	}
	o.detector.ApplyPlatformExtras(page, platform, req, state)
	o.fixer.FixRequiredFields(page)

	if req.PlanOnly {
		evidence.Logf("Plan-only run: form filled, submit loop skipped")
		result.OK = true
		result.Status = models.StatusPlannedOnly
		return result
	}

	return o.submitLoop(req, session, platform, fields, resumeText, retry, state, evidence, result)
}

// submitLoop is the bounded self-healing loop: clear CAPTCHAs, submit,
// detect the outcome, replay vision corrections, repeat.
func (o *Orchestrator) submitLoop(
	req *models.ApplicationRequest,
	session pageSession,
	platform Platform,
	fields map[string]string,
	resumeText string,
	retry *models.RetryPolicy,
	state *models.ApplicationState,
	evidence *models.EvidenceBundle,
	result *models.ApplicationResult,
) *models.ApplicationResult {
	page := session.Page()
	captcha := o.captchaFor(o.solverKey(req), o.vendorKey(req))
	vision := o.visionFor(o.geminiKey(req))

	submitClicked := false
	for attempt := 1; attempt <= MaxRetries; attempt++ {
		evidence.Logf("Submission attempt %d/%d", attempt, MaxRetries)

		o.submit.ExpandSections(page)
		if fixed := o.fixer.FixRequiredFields(page); fixed > 0 {
			if left := o.fixer.RemainingViolations(page); left > 0 {
				evidence.Logf("%d required controls still invalid after autofix", left)
			}
		}

		captchaStart := time.Now()
		retry.Reset(models.CategoryCaptcha)
		for {
			challenge := captcha.Resolve(page, req.JobURL, evidence)
			if challenge.Outcome == models.CaptchaSolved {
				state.CaptchaSolved = true
			}
			if challenge.Outcome != models.CaptchaUnsolved {
				break
			}
			evidence.CountError(models.CategoryCaptcha)
			if !retry.ShouldRetry(models.CategoryCaptcha) {
				evidence.Logf("No automatic CAPTCHA resolution; proceeding anyway")
				break
			}
		}
		evidence.RecordLatency("captcha", time.Since(captchaStart))

		o.fixer.TriggerNativeValidation(page)
		o.submit.AdvanceWizard(page, evidence)

		if !req.AllowSubmit {
			evidence.Logf("Submission not permitted by request; awaiting consent")
			result.OK = false
			result.Status = models.StatusAwaitingConsent
			return result
		}

		preShot, err := session.Screenshot("pre_submit")
		if err != nil {
			evidence.Logf("Pre-submit screenshot failed, aborting iteration: %v", err)
			evidence.CountError(models.CategoryDefault)
			continue
		}
		evidence.AddScreenshot("pre_submit", o.storeShot(result.RunID, preShot))

		if !o.submit.ClickSubmit(page, platform.Selectors.Submit, evidence) {
			evidence.CountError(models.CategorySubmit)
			if !retry.ShouldRetry(models.CategorySubmit) {
				evidence.Logf("No submit control after retries; submission cannot be confirmed")
				result.Status = models.StatusNotConfirmed
				return result
			}
			continue
		}
		submitClicked = true
		state.Advance(models.StepSubmitted)
		o.human.Think("review")

		postShot, err := session.Screenshot("post_submit")
		if err != nil {
			evidence.Logf("Post-submit screenshot failed, aborting iteration: %v", err)
			evidence.CountError(models.CategoryDefault)
			continue
		}
		evidence.AddScreenshot("post_submit", o.storeShot(result.RunID, postShot))

		outcomeStart := time.Now()
		heuristicOK := o.outcome.HeuristicSuccess(page)

		var verdict models.VisionVerdict
		if heuristicOK {
			verdict = models.VisionVerdict{Success: true, Reason: "heuristic confirmation"}
		} else {
			shot, shotErr := session.ScreenshotBytes()
			if shotErr != nil {
				evidence.Logf("Could not capture screenshot for vision check: %v", shotErr)
				verdict = models.VisionVerdict{Success: false, Reason: "screenshot unavailable", Instructions: []models.CorrectiveAction{}}
			} else {
				verdict = vision.AnalyzeSubmission(shot, resumeText, fields)
			}
			evidence.Logf("Vision verdict: success=%v reason=%q instructions=%d", verdict.Success, verdict.Reason, len(verdict.Instructions))
		}
		evidence.RecordLatency("outcome_check", time.Since(outcomeStart))

		if heuristicOK || verdict.Success {
			evidence.Logf("Submission confirmed on %s", platform.Name)
			result.OK = true
			result.Status = models.StatusSubmitted
			return result
		}

		if len(verdict.Instructions) > 0 && attempt < MaxRetries {
			evidence.Logf("Replaying %d corrective actions", len(verdict.Instructions))
			if !o.interp.Execute(page, verdict.Instructions, evidence) {
				evidence.Logf("No corrective action could be executed")
			}
		}
	}

	evidence.Logf("Retry budget exhausted after %d attempts", MaxRetries)
	result.OK = false
	if submitClicked {
		result.Status = models.StatusMaxRetriesReached
	} else {
		result.Status = models.StatusNotConfirmed
	}
	return result
}

func (o *Orchestrator) storeShot(runID, localPath string) string {
	if o.store == nil {
		return localPath
	}
	return o.store.StoreScreenshot(runID, localPath)
}

func (o *Orchestrator) geminiKey(req *models.ApplicationRequest) string {
	if req.GeminiAPIKey != "" {
		return req.GeminiAPIKey
	}
	return o.cfg.GeminiAPIKey
}

func (o *Orchestrator) solverKey(req *models.ApplicationRequest) string {
	if req.SolverAPIKey != "" {
		return req.SolverAPIKey
	}
	return o.cfg.SolverAPIKey
}

func (o *Orchestrator) vendorKey(req *models.ApplicationRequest) string {
	if req.ProxyVendorKey != "" {
		return req.ProxyVendorKey
	}
	return o.cfg.ProxyVendorKey
}

func (o *Orchestrator) vendorWSURL(req *models.ApplicationRequest) string {
	if req.ProxyVendorWSURL != "" {
		return req.ProxyVendorWSURL
	}
	return o.cfg.ProxyVendorWSURL
}
