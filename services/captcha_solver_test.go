package services

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"jobrunner/models"
)

func testResolver(solverKey string) *CaptchaResolver {
	r := NewCaptchaResolver(solverKey, "", testHuman())
	r.pollInterval = 0
	return r
}

func TestResolveNilPage(t *testing.T) {
	r := testResolver("key")

	challenge := r.Resolve(nil, "https://example.com", models.NewEvidenceBundle())

	assert.Equal(t, models.CaptchaNone, challenge.Type)
	assert.Equal(t, models.CaptchaNotDetected, challenge.Outcome)
}

func TestDrainSolveSignalsClearsStaleLifecycleEvents(t *testing.T) {
	r := testResolver("key")

	// Leftover signals from an earlier challenge must not satisfy the next
	// wait.
	r.solveStarted <- struct{}{}
	r.solveFinished <- struct{}{}

	r.drainSolveSignals()

	select {
	case <-r.solveStarted:
		t.Fatal("stale start signal survived the drain")
	case <-r.solveFinished:
		t.Fatal("stale finish signal survived the drain")
	default:
	}
}

func TestSolveWithServiceHappyPath(t *testing.T) {
	var polls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/in.php", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "userrecaptcha", r.URL.Query().Get("method"))
		assert.Equal(t, "site-key-123", r.URL.Query().Get("googlekey"))
		assert.Equal(t, "https://example.com/jobs/1", r.URL.Query().Get("pageurl"))
		fmt.Fprint(w, `{"status":1,"request":"task-42"}`)
	})
	mux.HandleFunc("/res.php", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "task-42", r.URL.Query().Get("id"))
		if atomic.AddInt32(&polls, 1) < 3 {
			fmt.Fprint(w, `{"status":0,"request":"CAPCHA_NOT_READY"}`)
			return
		}
		fmt.Fprint(w, `{"status":1,"request":"solved-token"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	r := testResolver("api-key")
	r.submitURL = server.URL + "/in.php"
	r.resultURL = server.URL + "/res.php"

	token, err := r.solveWithService(models.CaptchaRecaptcha, "site-key-123", "https://example.com/jobs/1")

	assert.NoError(t, err)
	assert.Equal(t, "solved-token", token)
	assert.EqualValues(t, 3, polls)
}

func TestSolveWithServiceHcaptchaParams(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/in.php", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "hcaptcha", r.URL.Query().Get("method"))
		assert.Equal(t, "hc-key", r.URL.Query().Get("sitekey"))
		fmt.Fprint(w, `{"status":1,"request":"task-7"}`)
	})
	mux.HandleFunc("/res.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":1,"request":"hc-token"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	r := testResolver("api-key")
	r.submitURL = server.URL + "/in.php"
	r.resultURL = server.URL + "/res.php"

	token, err := r.solveWithService(models.CaptchaHcaptcha, "hc-key", "https://example.com")

	assert.NoError(t, err)
	assert.Equal(t, "hc-token", token)
}

func TestSolveWithServiceRejection(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/in.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":0,"request":"ERROR_WRONG_USER_KEY"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	r := testResolver("bad-key")
	r.submitURL = server.URL + "/in.php"

	_, err := r.solveWithService(models.CaptchaRecaptcha, "site-key", "https://example.com")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ERROR_WRONG_USER_KEY")
}

func TestSolveWithServiceSolverError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/in.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":1,"request":"task-1"}`)
	})
	mux.HandleFunc("/res.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":0,"request":"ERROR_CAPTCHA_UNSOLVABLE"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	r := testResolver("api-key")
	r.submitURL = server.URL + "/in.php"
	r.resultURL = server.URL + "/res.php"

	_, err := r.solveWithService(models.CaptchaRecaptcha, "site-key", "https://example.com")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ERROR_CAPTCHA_UNSOLVABLE")
}
