package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"
)

// loginPage mimics the reader's login form. Submitting writes
// "<email>|<code>" into the hidden token field.
const loginPage = `<!DOCTYPE html>
<html><body>
<form onsubmit="return false;">
  <input id="txtEmail" type="email">
  <input id="txtAccessCode" type="text">
  <button id="btnLogin" type="button" onclick="
    setTimeout(function () {
      var el = document.createElement('input');
      el.type = 'hidden';
      el.id = 'sessionVars';
      el.value = document.getElementById('txtEmail').value + '|' +
                 document.getElementById('txtAccessCode').value;
      document.body.appendChild(el);
    }, 50);
  ">Log in</button>
</form>
</body></html>`

func newLoginServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, loginPage)
	}))
	t.Cleanup(server.Close)
	return server
}

// findChrome returns a local Chrome/Chromium executable or skips the test.
func findChrome(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skipf("Chrome not available, skipping browser test")
	return ""
}

func TestBrowser_Token(t *testing.T) {
	chrome := findChrome(t)
	server := newLoginServer(t)

	b, err := NewBrowser(BrowserConfig{
		LoginURL:   server.URL,
		Email:      "stage@example.com",
		AccessCode: "XYZ-42",
		ChromePath: chrome,
		NoSandbox:  true,
		Timeout:    30 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewBrowser failed: %v", err)
	}

	token, err := b.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if token != "stage@example.com|XYZ-42" {
		t.Errorf("token = %q, want stage@example.com|XYZ-42", token)
	}
}

func TestBrowser_TokenTimeout(t *testing.T) {
	chrome := findChrome(t)
	server := newLoginServer(t)

	b, err := NewBrowser(BrowserConfig{
		LoginURL:      server.URL,
		Email:         "stage@example.com",
		AccessCode:    "XYZ-42",
		TokenSelector: "#never-appears",
		ChromePath:    chrome,
		NoSandbox:     true,
		Timeout:       3 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewBrowser failed: %v", err)
	}

	if _, err := b.Token(context.Background()); err == nil {
		t.Fatal("expected an error when the token element never appears")
	}
}
