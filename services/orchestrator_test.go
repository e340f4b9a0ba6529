package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"

	"jobrunner/config"
	"jobrunner/models"
	"jobrunner/parsers"
)

type fakeSession struct {
	navErr   error
	closed   bool
	shots    int
	shotErr  error
	navCalls int
}

func (s *fakeSession) Page() playwright.Page { return nil }
func (s *fakeSession) Navigate(string) error {
	s.navCalls++
	return s.navErr
}
func (s *fakeSession) Screenshot(label string) (string, error) {
	if s.shotErr != nil {
		return "", s.shotErr
	}
	s.shots++
	return fmt.Sprintf("/tmp/%s_%d.png", label, s.shots), nil
}
func (s *fakeSession) ScreenshotBytes() ([]byte, error) { return []byte("png"), nil }
func (s *fakeSession) Close()                           { s.closed = true }

type fakeSubmit struct {
	clicks          int
	clickResult     bool
	submitSelectors []string
}

func (f *fakeSubmit) ClickSubmit(_ playwright.Page, platformSubmit []string, _ *models.EvidenceBundle) bool {
	f.clicks++
	f.submitSelectors = platformSubmit
	return f.clickResult
}
func (f *fakeSubmit) AdvanceWizard(playwright.Page, *models.EvidenceBundle) int { return 0 }
func (f *fakeSubmit) ExpandSections(playwright.Page)                            {}
func (f *fakeSubmit) UploadResume(playwright.Page, []byte, []string, *models.EvidenceBundle) bool {
	return false
}

type fakeFiller struct {
	filled    int
	panics    bool
	selectors SelectorSet
}

func (f *fakeFiller) FillFields(_ playwright.Page, fields map[string]string, selectors SelectorSet, state *models.ApplicationState, _ *models.EvidenceBundle) int {
	if f.panics {
		panic("filler exploded")
	}
	f.selectors = selectors
	for name := range fields {
		state.MarkFilled(name)
		f.filled++
	}
	return f.filled
}

type fakeFixer struct{}

func (fakeFixer) FixRequiredFields(playwright.Page) int   { return 0 }
func (fakeFixer) RemainingViolations(playwright.Page) int { return 0 }
func (fakeFixer) TriggerNativeValidation(playwright.Page) {}

type fakeCaptcha struct{}

func (fakeCaptcha) Resolve(playwright.Page, string, *models.EvidenceBundle) models.CaptchaChallenge {
	return models.CaptchaChallenge{Type: models.CaptchaNone, Outcome: models.CaptchaNotDetected}
}

type fakeOutcome struct{ success bool }

func (f fakeOutcome) HeuristicSuccess(playwright.Page) bool { return f.success }

func noDelayRetry() *models.RetryPolicy {
	return models.NewRetryPolicy().WithSleep(func(time.Duration) {})
}

type orchestratorHarness struct {
	orch     *Orchestrator
	session  *fakeSession
	submit   *fakeSubmit
	filler   *fakeFiller
	sessions int
}

func newHarness(outcome outcomeChecker) *orchestratorHarness {
	h := &orchestratorHarness{
		session: &fakeSession{},
		submit:  &fakeSubmit{clickResult: true},
		filler:  &fakeFiller{},
	}
	human := testHuman()
	h.orch = &Orchestrator{
		cfg: config.AppConfig{},
		newSession: func(string, string) (pageSession, error) {
			h.sessions++
			return h.session, nil
		},
		captchaFor: func(string, string) captchaChain { return fakeCaptcha{} },
		visionFor:  func(key string) verdictProvider { return NewVisionClient(key) },
		newRetry:   noDelayRetry,
		filler:     h.filler,
		fixer:      fakeFixer{},
		outcome:    outcome,
		interp:     NewInstructionInterpreter(human),
		submit:     h.submit,
		detector:   NewPlatformDetector(),
		resumes:    parsers.NewResumeExtractor(),
		human:      human,
	}
	return h
}

func validRequest() *models.ApplicationRequest {
	return &models.ApplicationRequest{
		JobURL:      "https://boards.greenhouse.io/acme/jobs/1",
		Email:       "jane@example.com",
		FullName:    "Jane Doe",
		AllowSubmit: true,
	}
}

func TestRunMissingFieldsCreatesNoSession(t *testing.T) {
	h := newHarness(fakeOutcome{})

	result := h.orch.Run(&models.ApplicationRequest{})

	assert.Equal(t, models.StatusMissingFields, result.Status)
	assert.False(t, result.OK)
	assert.Zero(t, h.sessions)
	assert.NotNil(t, result.Evidence)
}

func TestRunPlanOnlySkipsSubmitLoop(t *testing.T) {
	h := newHarness(fakeOutcome{})

	req := validRequest()
	req.PlanOnly = true
	result := h.orch.Run(req)

	assert.Equal(t, models.StatusPlannedOnly, result.Status)
	assert.True(t, result.OK)
	assert.Zero(t, h.submit.clicks)
	assert.True(t, h.session.closed)
	assert.True(t, result.State.IsFilled("email"))
}

func TestRunWithoutConsentHaltsBeforeSubmit(t *testing.T) {
	h := newHarness(fakeOutcome{})

	req := validRequest()
	req.AllowSubmit = false
	result := h.orch.Run(req)

	assert.Equal(t, models.StatusAwaitingConsent, result.Status)
	assert.False(t, result.OK)
	assert.Zero(t, h.submit.clicks)
	assert.True(t, h.session.closed)
}

func TestRunHeuristicConfirmation(t *testing.T) {
	h := newHarness(fakeOutcome{success: true})

	result := h.orch.Run(validRequest())

	assert.Equal(t, models.StatusSubmitted, result.Status)
	assert.True(t, result.OK)
	assert.Equal(t, 1, h.submit.clicks)
	assert.Equal(t, "Greenhouse", result.Platform)
	assert.Len(t, result.Evidence.PreSubmitShots, 1)
	assert.Len(t, result.Evidence.PostSubmitShots, 1)
	assert.True(t, h.session.closed)
}

func TestRunRoutesPlatformSelectors(t *testing.T) {
	h := newHarness(fakeOutcome{success: true})

	result := h.orch.Run(validRequest())

	assert.Equal(t, models.StatusSubmitted, result.Status)
	assert.Contains(t, h.filler.selectors.FirstName, "input#first_name")
	assert.Contains(t, h.filler.selectors.Email, "input#email")
	assert.Contains(t, h.submit.submitSelectors, "input#submit_app")
}

func TestRunNoVisionKeyExhaustsRetries(t *testing.T) {
	h := newHarness(fakeOutcome{})

	result := h.orch.Run(validRequest())

	assert.Equal(t, models.StatusMaxRetriesReached, result.Status)
	assert.False(t, result.OK)
	assert.Equal(t, MaxRetries, h.submit.clicks)
	assert.True(t, h.session.closed)
}

func TestRunNoSubmitControl(t *testing.T) {
	h := newHarness(fakeOutcome{})
	h.submit.clickResult = false

	result := h.orch.Run(validRequest())

	assert.Equal(t, models.StatusNotConfirmed, result.Status)
	assert.False(t, result.OK)
	assert.True(t, h.session.closed)
}

func TestRunNavigationExhaustion(t *testing.T) {
	h := newHarness(fakeOutcome{})
	h.session.navErr = fmt.Errorf("net::ERR_TIMED_OUT")

	result := h.orch.Run(validRequest())

	assert.Equal(t, models.StatusError, result.Status)
	assert.False(t, result.OK)
	assert.Contains(t, result.Error, "navigation failed")
	// Initial attempt plus the network retry budget.
	assert.Equal(t, 4, h.session.navCalls)
	assert.True(t, h.session.closed)
}

func TestRunRecoversFromPanic(t *testing.T) {
	h := newHarness(fakeOutcome{})
	h.orch.filler = &fakeFiller{panics: true}

	var result *models.ApplicationResult
	assert.NotPanics(t, func() { result = h.orch.Run(validRequest()) })

	assert.Equal(t, models.StatusError, result.Status)
	assert.False(t, result.OK)
	assert.Contains(t, result.Error, "unexpected failure")
	assert.True(t, h.session.closed)
}

func TestRunScreenshotFailureConsumesIterations(t *testing.T) {
	h := newHarness(fakeOutcome{})
	h.session.shotErr = fmt.Errorf("page gone")

	result := h.orch.Run(validRequest())

	// Every iteration aborts at the pre-submit capture; the run still
	// terminates within the retry budget without a single submit click.
	assert.Equal(t, models.StatusNotConfirmed, result.Status)
	assert.Zero(t, h.submit.clicks)
	assert.True(t, h.session.closed)
}
