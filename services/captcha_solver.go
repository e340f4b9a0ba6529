package services

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/tidwall/gjson"

	"jobrunner/models"
)

const (
	solverSubmitURL = "http://2captcha.com/in.php"
	solverResultURL = "http://2captcha.com/res.php"

	managedSolveTimeout = 20 * time.Second
	solverPollInterval  = 5 * time.Second
	solverPollBudget    = 24 // 2 minutes at 5s per poll
)

var (
	recaptchaKeyPattern = regexp.MustCompile(`data-sitekey=["']([\w-]+)["']`)
	iframeKeyPattern    = regexp.MustCompile(`[?&](?:k|sitekey)=([\w-]+)`)
)

// CaptchaResolver clears CAPTCHA challenges through ordered tiers: managed
// vendor resolution, the paid solving service, then detection-only text and
// audio fallbacks. No tier failure is ever fatal to a run.
type CaptchaResolver struct {
	solverKey string
	vendorKey string
	client    *http.Client
	human     *HumanSimulator

	submitURL    string
	resultURL    string
	pollInterval time.Duration

	// One console listener per resolver; the resolver lives for exactly one
	// run and one page, and Resolve is called many times within the loop.
	consoleHooked bool
	solveStarted  chan struct{}
	solveFinished chan struct{}
}

func NewCaptchaResolver(solverKey, vendorKey string, human *HumanSimulator) *CaptchaResolver {
	return &CaptchaResolver{
		solverKey:     solverKey,
		vendorKey:     vendorKey,
		client:        &http.Client{Timeout: 30 * time.Second},
		human:         human,
		submitURL:     solverSubmitURL,
		resultURL:     solverResultURL,
		pollInterval:  solverPollInterval,
		solveStarted:  make(chan struct{}, 1),
		solveFinished: make(chan struct{}, 1),
	}
}

// Resolve runs the tiers in order and returns the first conclusive outcome.
// "No challenge on the page" is a valid, successful outcome.
func (c *CaptchaResolver) Resolve(page playwright.Page, pageURL string, evidence *models.EvidenceBundle) models.CaptchaChallenge {
	if page == nil {
		return models.CaptchaChallenge{Type: models.CaptchaNone, Outcome: models.CaptchaNotDetected}
	}

	if c.vendorKey != "" {
		if outcome := c.waitForManagedSolve(page, evidence); outcome != "" {
			return models.CaptchaChallenge{Type: models.CaptchaRecaptcha, Outcome: outcome}
		}
	}

	challenge := c.detectChallenge(page)
	switch challenge.Type {
	case models.CaptchaNone:
		evidence.Logf("No CAPTCHA challenge detected")
		return challenge
	case models.CaptchaText, models.CaptchaAudio:
		// Detection-only stubs; an OCR or speech-to-text tier would slot in
		// here. Fall through so the run keeps going.
		evidence.Logf("Detected %s CAPTCHA; no automatic resolution available", challenge.Type)
		challenge.Outcome = models.CaptchaUnsolved
		return challenge
	}

	if c.solverKey == "" {
		evidence.Logf("Detected %s challenge but no solving-service credential configured", challenge.Type)
		challenge.Outcome = models.CaptchaUnsolved
		return challenge
	}
	if challenge.SiteKey == "" {
		evidence.Logf("Detected %s challenge but could not extract a site key", challenge.Type)
		challenge.Outcome = models.CaptchaUnsolved
		return challenge
	}

	// A person pauses when a challenge appears.
	c.human.Think("decision")

	token, err := c.solveWithService(challenge.Type, challenge.SiteKey, pageURL)
	if err != nil {
		evidence.Logf("Solving service failed: %v", err)
		evidence.CountError(models.CategoryCaptcha)
		challenge.Outcome = models.CaptchaUnsolved
		return challenge
	}

	if err := c.injectToken(page, challenge.Type, token); err != nil {
		evidence.Logf("Token injection failed: %v", err)
		challenge.Outcome = models.CaptchaUnsolved
		return challenge
	}

	evidence.Logf("Injected %s token from solving service", challenge.Type)
	challenge.Outcome = models.CaptchaSolved
	return challenge
}

// waitForManagedSolve waits for the remote vendor to clear the challenge on
// its own, watching for its solve lifecycle console messages within a bounded
// window. Returns "" when this tier has nothing to say.
func (c *CaptchaResolver) waitForManagedSolve(page playwright.Page, evidence *models.EvidenceBundle) string {
	if !c.consoleHooked {
		page.OnConsole(func(msg playwright.ConsoleMessage) {
			switch msg.Text() {
			case "browserbase-solving-started":
				select {
				case c.solveStarted <- struct{}{}:
				default:
				}
			case "browserbase-solving-finished":
				select {
				case c.solveFinished <- struct{}{}:
				default:
				}
			}
		})
		c.consoleHooked = true
	}
	c.drainSolveSignals()

	select {
	case <-c.solveStarted:
	case <-time.After(5 * time.Second):
		// Vendor never began solving: either no challenge or unmanaged page.
		return ""
	}

	evidence.Logf("Vendor began managed CAPTCHA resolution; waiting")
	select {
	case <-c.solveFinished:
		evidence.Logf("Managed CAPTCHA resolution finished")
		return models.CaptchaSolved
	case <-time.After(managedSolveTimeout):
		evidence.Logf("Managed CAPTCHA resolution timed out")
		return models.CaptchaUnsolved
	}
}

// drainSolveSignals discards lifecycle signals left over from an earlier
// challenge so a stale "started" cannot satisfy a fresh wait.
func (c *CaptchaResolver) drainSolveSignals() {
	for {
		select {
		case <-c.solveStarted:
		case <-c.solveFinished:
		default:
			return
		}
	}
}

// detectChallenge probes for hCaptcha markers first, then reCAPTCHA, then the
// simple text and audio variants.
func (c *CaptchaResolver) detectChallenge(page playwright.Page) models.CaptchaChallenge {
	if n, _ := page.Locator(".h-captcha, iframe[src*='hcaptcha.com']").Count(); n > 0 {
		return models.CaptchaChallenge{Type: models.CaptchaHcaptcha, SiteKey: c.extractSiteKey(page, ".h-captcha", "iframe[src*='hcaptcha.com']")}
	}
	if n, _ := page.Locator(".g-recaptcha, iframe[src*='recaptcha']").Count(); n > 0 {
		return models.CaptchaChallenge{Type: models.CaptchaRecaptcha, SiteKey: c.extractSiteKey(page, ".g-recaptcha", "iframe[src*='recaptcha']")}
	}
	if n, _ := page.Locator("img[src*='captcha' i]").Count(); n > 0 {
		if m, _ := page.Locator("input[name*='captcha' i]").Count(); m > 0 {
			return models.CaptchaChallenge{Type: models.CaptchaText}
		}
	}
	if n, _ := page.Locator("#recaptcha-audio-button, button[aria-label*='audio' i], .rc-button-audio").Count(); n > 0 {
		return models.CaptchaChallenge{Type: models.CaptchaAudio}
	}
	return models.CaptchaChallenge{Type: models.CaptchaNone, Outcome: models.CaptchaNotDetected}
}

// extractSiteKey tries the widget's data-sitekey attribute, the challenge
// iframe URL and finally a raw scan of the page HTML.
func (c *CaptchaResolver) extractSiteKey(page playwright.Page, widgetSelector, iframeSelector string) string {
	widget := page.Locator(widgetSelector).First()
	if key, err := widget.GetAttribute("data-sitekey"); err == nil && key != "" {
		return key
	}
	frame := page.Locator(iframeSelector).First()
	if src, err := frame.GetAttribute("src"); err == nil && src != "" {
		if m := iframeKeyPattern.FindStringSubmatch(src); len(m) == 2 {
			return m[1]
		}
	}
	if html, err := page.Content(); err == nil {
		if m := recaptchaKeyPattern.FindStringSubmatch(html); len(m) == 2 {
			return m[1]
		}
	}
	return ""
}

// solveWithService submits (type, site key, page URL) to the solving service
// and polls for the token.
func (c *CaptchaResolver) solveWithService(challengeType, siteKey, pageURL string) (string, error) {
	params := url.Values{}
	params.Set("key", c.solverKey)
	params.Set("pageurl", pageURL)
	params.Set("json", "1")
	switch challengeType {
	case models.CaptchaHcaptcha:
		params.Set("method", "hcaptcha")
		params.Set("sitekey", siteKey)
	default:
		params.Set("method", "userrecaptcha")
		params.Set("googlekey", siteKey)
	}

	body, err := c.get(c.submitURL + "?" + params.Encode())
	if err != nil {
		return "", fmt.Errorf("solver submit failed: %w", err)
	}
	if gjson.GetBytes(body, "status").Int() != 1 {
		return "", fmt.Errorf("solver rejected task: %s", gjson.GetBytes(body, "request").String())
	}
	taskID := gjson.GetBytes(body, "request").String()

	poll := url.Values{}
	poll.Set("key", c.solverKey)
	poll.Set("action", "get")
	poll.Set("id", taskID)
	poll.Set("json", "1")
	for i := 0; i < solverPollBudget; i++ {
		time.Sleep(c.pollInterval)
		body, err := c.get(c.resultURL + "?" + poll.Encode())
		if err != nil {
			return "", fmt.Errorf("solver poll failed: %w", err)
		}
		if gjson.GetBytes(body, "status").Int() == 1 {
			return gjson.GetBytes(body, "request").String(), nil
		}
		if answer := gjson.GetBytes(body, "request").String(); answer != "CAPCHA_NOT_READY" {
			return "", fmt.Errorf("solver error: %s", answer)
		}
	}
	return "", fmt.Errorf("solver did not produce a token in time")
}

func (c *CaptchaResolver) get(u string) ([]byte, error) {
	resp, err := c.client.Get(u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// injectToken writes the token into the hidden response field and fires the
// widget's own callbacks so client-side validation accepts it.
func (c *CaptchaResolver) injectToken(page playwright.Page, challengeType, token string) error {
	script := `
	(token) => {
		document.querySelectorAll("[name='g-recaptcha-response'], [name='h-captcha-response']").forEach(el => {
			el.value = token;
			el.innerHTML = token;
			el.dispatchEvent(new Event('input', { bubbles: true }));
			el.dispatchEvent(new Event('change', { bubbles: true }));
		});
		try {
			if (window.___grecaptcha_cfg && window.___grecaptcha_cfg.clients) {
				Object.values(window.___grecaptcha_cfg.clients).forEach(client => {
					Object.values(client).forEach(entry => {
						if (entry && typeof entry === 'object') {
							Object.values(entry).forEach(widget => {
								if (widget && typeof widget.callback === 'function') {
									widget.callback(token);
								}
							});
						}
					});
				});
			}
			if (window.hcaptcha && typeof window.hcaptcha.getResponse === 'function') {
				window.hcaptcha.getResponse = () => token;
			}
			if (window.grecaptcha && typeof window.grecaptcha.getResponse === 'function') {
				window.grecaptcha.getResponse = () => token;
			}
		} catch (e) {}
		return true;
	}`
	_, err := page.Evaluate(script, token)
	return err
}
