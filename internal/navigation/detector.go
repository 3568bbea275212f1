// Package navigation decides when a URL change in a tab counts as a new page load.
package navigation

type tabState struct {
	normalized string // last normalized URL observed
	actual     string // last resolved URL of a logged page, the next load's referrer
}

// Detector keeps per-tab navigation state. It is not safe for concurrent use.
type Detector struct {
	tabs map[int]*tabState
}

func NewDetector() *Detector {
	return &Detector{tabs: make(map[int]*tabState)}
}

// Observe records raw as the tab's current URL and reports whether its normalized
// form differs from the previous observation. Repeated notifications for the same
// page return false.
func (d *Detector) Observe(tabID int, raw string) bool {
	normalized := Normalize(raw)
	state, ok := d.tabs[tabID]
	if !ok {
		d.tabs[tabID] = &tabState{normalized: normalized}
		return true
	}
	if state.normalized == normalized {
		return false
	}
	state.normalized = normalized
	return true
}

// LastActual returns the URL of the tab's previously logged page, if any.
func (d *Detector) LastActual(tabID int) string {
	if state, ok := d.tabs[tabID]; ok {
		return state.actual
	}
	return ""
}

// SetActual records the URL of the page just logged. It does nothing for a tab
// that has been forgotten in the meantime.
func (d *Detector) SetActual(tabID int, actual string) {
	if state, ok := d.tabs[tabID]; ok {
		state.actual = actual
	}
}

func (d *Detector) Tracked(tabID int) bool {
	_, ok := d.tabs[tabID]
	return ok
}

func (d *Detector) Forget(tabID int) {
	delete(d.tabs, tabID)
}

func (d *Detector) Reset() {
	d.tabs = make(map[int]*tabState)
}
