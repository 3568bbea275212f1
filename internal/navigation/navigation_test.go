package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"origin and path", "https://a.com/docs/page", "https://a.com/docs/page"},
		{"empty path becomes root", "https://a.com", "https://a.com/"},
		{"fragment dropped", "https://a.com/#x", "https://a.com/"},
		{"query dropped", "https://a.com/search?q=go", "https://a.com/search"},
		{"port kept", "http://localhost:3000/app?x=1", "http://localhost:3000/app"},
		{"host lowercased", "https://A.COM/Path", "https://a.com/Path"},
		{"webmail keeps fragment", "https://mail.google.com/mail/u/0/#inbox", "https://mail.google.com/mail/u/0/#inbox"},
		{"webmail drops query", "https://mail.google.com/mail/u/0/?tab=rm#sent", "https://mail.google.com/mail/u/0/#sent"},
		{"webmail without fragment", "https://mail.google.com/mail/u/0/", "https://mail.google.com/mail/u/0/"},
		{"other google host drops fragment", "https://docs.google.com/document/d/1#heading", "https://docs.google.com/document/d/1"},
		{"opaque url unchanged", "about:blank", "about:blank"},
		{"garbage unchanged", "::not a url", "::not a url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func TestIgnored(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"chrome://newtab/", true},
		{"chrome://extensions", true},
		{"chrome-extension://abc/popup.html", true},
		{"edge://newtab", true},
		{"about:blank", true},
		{"about:newtab", true},
		{"https://www.google.com/_/chrome/newtab?ie=UTF-8", true},
		{"", true},
		{"https://www.google.com/search?q=go", false},
		{"https://example.com/", false},
		{"http://localhost:8080/", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Ignored(tt.raw))
		})
	}
}

func TestNeedsGracePeriod(t *testing.T) {
	assert.True(t, NeedsGracePeriod("https://mail.google.com/mail/u/0/#inbox"))
	assert.True(t, NeedsGracePeriod("https://MAIL.google.com/"))
	assert.False(t, NeedsGracePeriod("https://google.com/mail"))
	assert.False(t, NeedsGracePeriod("::bad"))
}

func TestObserveEmitsOnlyOnTransitions(t *testing.T) {
	d := NewDetector()

	var emitted int
	for _, raw := range []string{
		"https://a.com/",
		"https://a.com/",
		"https://b.com/",
		"https://b.com/?utm=1",
		"https://a.com/#top",
	} {
		if d.Observe(7, raw) {
			emitted++
		}
	}

	assert.Equal(t, 3, emitted)
}

func TestObserveFragmentChange(t *testing.T) {
	d := NewDetector()
	assert.True(t, d.Observe(7, "https://a.com/"))
	assert.False(t, d.Observe(7, "https://a.com/#x"))

	assert.True(t, d.Observe(8, "https://mail.google.com/mail/u/0/#inbox"))
	assert.True(t, d.Observe(8, "https://mail.google.com/mail/u/0/#sent"))
}

func TestObserveIsPerTab(t *testing.T) {
	d := NewDetector()
	assert.True(t, d.Observe(1, "https://a.com/"))
	assert.True(t, d.Observe(2, "https://a.com/"))
	assert.False(t, d.Observe(1, "https://a.com/"))
}

func TestActualURLLifecycle(t *testing.T) {
	d := NewDetector()

	d.SetActual(3, "https://ignored.com/")
	assert.False(t, d.Tracked(3), "SetActual must not create state")

	d.Observe(3, "https://a.com/")
	assert.Equal(t, "", d.LastActual(3))
	d.SetActual(3, "https://a.com/?ref=1")
	assert.Equal(t, "https://a.com/?ref=1", d.LastActual(3))

	d.Forget(3)
	assert.False(t, d.Tracked(3))
	assert.Equal(t, "", d.LastActual(3))
	assert.True(t, d.Observe(3, "https://a.com/"), "a reused tab id starts fresh")
}

func TestReset(t *testing.T) {
	d := NewDetector()
	d.Observe(1, "https://a.com/")
	d.Reset()
	assert.False(t, d.Tracked(1))
	assert.True(t, d.Observe(1, "https://a.com/"))
}
