package services

import (
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Think-time buckets. Each is a bounded uniform range.
var thinkBuckets = map[string][2]time.Duration{
	"simple_field":  {300 * time.Millisecond, 800 * time.Millisecond},
	"complex_field": {800 * time.Millisecond, 2000 * time.Millisecond},
	"decision":      {1000 * time.Millisecond, 2500 * time.Millisecond},
	"review":        {1500 * time.Millisecond, 3500 * time.Millisecond},
}

// HumanSimulator wraps page interactions with human-like pacing and movement.
// Every gesture is best-effort: failures inside a simulated gesture are
// swallowed and degrade to the direct Playwright action, never surfaced as a
// fill failure. The clock and random source are injectable so tests run with
// zero real delay.
type HumanSimulator struct {
	rng   *rand.Rand
	sleep func(time.Duration)

	// Probability of taking the humanized path instead of a direct action.
	humanizeProb float64
}

func NewHumanSimulator() *HumanSimulator {
	return &HumanSimulator{
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:        time.Sleep,
		humanizeProb: 0.7,
	}
}

func (h *HumanSimulator) between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(h.rng.Int63n(int64(max-min)))
}

// ShouldHumanize decides per action whether to use the humanized path.
// Keeping a direct-assignment share balances realism against reliability.
func (h *HumanSimulator) ShouldHumanize() bool {
	return h.rng.Float64() < h.humanizeProb
}

// Think pauses for a duration drawn from the named bucket. Unknown bucket
// names fall back to simple_field.
func (h *HumanSimulator) Think(bucket string) {
	r, ok := thinkBuckets[bucket]
	if !ok {
		r = thinkBuckets["simple_field"]
	}
	h.sleep(h.between(r[0], r[1]))
}

// RandomBreak occasionally inserts a longer pause, independent of think time.
func (h *HumanSimulator) RandomBreak() {
	p := h.rng.Float64()
	switch {
	case p < 0.05:
		h.sleep(h.between(3*time.Second, 8*time.Second))
	case p < 0.35:
		h.sleep(h.between(500*time.Millisecond, 1500*time.Millisecond))
	}
}

// MoveMouse moves the pointer along a randomized quadratic curve with a
// jittered control point, stepped in 8-15 increments. Never a straight line
// or an instant jump.
func (h *HumanSimulator) MoveMouse(page playwright.Page, fromX, fromY, toX, toY float64) {
	if page == nil {
		return
	}
	steps := 8 + h.rng.Intn(8)
	ctrlX := (fromX+toX)/2 + (h.rng.Float64()-0.5)*120
	ctrlY := (fromY+toY)/2 + (h.rng.Float64()-0.5)*120

	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := math.Pow(1-t, 2)*fromX + 2*(1-t)*t*ctrlX + t*t*toX
		y := math.Pow(1-t, 2)*fromY + 2*(1-t)*t*ctrlY + t*t*toY
		if err := page.Mouse().Move(x, y); err != nil {
			return
		}
		h.sleep(h.between(5*time.Millisecond, 25*time.Millisecond))
	}
}

// Click clicks a random point within 30-70% of the element's bounding box,
// after a short pointer approach and a randomized press duration. Falls back
// to a plain locator click when the humanized path fails.
func (h *HumanSimulator) Click(page playwright.Page, locator playwright.Locator) error {
	if locator == nil {
		return nil
	}
	box, err := locator.BoundingBox()
	if err != nil || box == nil || box.Width == 0 || box.Height == 0 {
		return locator.Click()
	}

	targetX := box.X + box.Width*(0.3+h.rng.Float64()*0.4)
	targetY := box.Y + box.Height*(0.3+h.rng.Float64()*0.4)

	startX := targetX + (h.rng.Float64()-0.5)*200
	startY := targetY + (h.rng.Float64()-0.5)*200
	h.MoveMouse(page, startX, startY, targetX, targetY)

	if err := page.Mouse().Down(); err != nil {
		return locator.Click()
	}
	h.sleep(h.between(40*time.Millisecond, 160*time.Millisecond))
	if err := page.Mouse().Up(); err != nil {
		return locator.Click()
	}
	return nil
}

// Type emits text character by character at a variable cadence. With small
// independent probabilities it injects a wrong character followed by a
// backspace, or a multi-character hesitation pause. With a smaller
// probability it first selects-all and deletes existing content.
func (h *HumanSimulator) Type(page playwright.Page, locator playwright.Locator, text string) error {
	if locator == nil {
		return nil
	}
	if err := h.Click(page, locator); err != nil {
		if err := locator.Click(); err != nil {
			return err
		}
	}

	if h.rng.Float64() < 0.1 {
		if existing, err := locator.InputValue(); err == nil && existing != "" {
			_ = locator.Press("ControlOrMeta+a")
			_ = locator.Press("Backspace")
			h.sleep(h.between(100*time.Millisecond, 300*time.Millisecond))
		}
	}

	for _, ch := range text {
		if h.rng.Float64() < 0.04 {
			wrong := string(rune('a' + h.rng.Intn(26)))
			_ = page.Keyboard().Type(wrong)
			h.sleep(h.between(80*time.Millisecond, 250*time.Millisecond))
			_ = page.Keyboard().Press("Backspace")
		}
		if h.rng.Float64() < 0.06 {
			h.sleep(h.between(300*time.Millisecond, 900*time.Millisecond))
		}
		if err := page.Keyboard().Type(string(ch)); err != nil {
			// Humanized typing failed mid-way; set the value directly.
			return locator.Fill(text)
		}
		h.sleep(h.between(40*time.Millisecond, 180*time.Millisecond))
	}
	return nil
}

// ReadPage scrolls through the page the way a person skims it: a reading
// pause proportional to the word count, then randomized scroll bursts with
// an occasional small reverse scroll.
func (h *HumanSimulator) ReadPage(page playwright.Page) {
	if page == nil {
		return
	}
	content, err := page.Content()
	if err != nil {
		return
	}
	words := len(strings.Fields(content))

	pause := h.readingPause(words)
	h.sleep(pause)

	bursts := 2 + h.rng.Intn(4)
	for i := 0; i < bursts; i++ {
		dy := 200 + h.rng.Float64()*500
		if h.rng.Float64() < 0.15 {
			dy = -(50 + h.rng.Float64()*120)
		}
		if err := page.Mouse().Wheel(0, dy); err != nil {
			return
		}
		h.sleep(h.between(300*time.Millisecond, 1200*time.Millisecond))
	}
}

// readingPause scales with word count at roughly 250 words per minute,
// clamped to a sane range, with random jitter.
func (h *HumanSimulator) readingPause(words int) time.Duration {
	base := time.Duration(float64(words)/250*60) * time.Second / 10
	if base < time.Second {
		base = time.Second
	}
	if base > 6*time.Second {
		base = 6 * time.Second
	}
	jitter := time.Duration((h.rng.Float64() - 0.5) * float64(base) * 0.4)
	return base + jitter
}
