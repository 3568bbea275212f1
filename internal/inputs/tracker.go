// Package inputs remembers the last known value of form fields so that typing
// events can carry the value a field had before the edit.
package inputs

type fieldKey struct {
	tabID   int
	fieldID string
}

// Tracker keys values by tab and the capture adapter's stable field identifier.
// An entry lives from Focus until Blur. It is not safe for concurrent use.
type Tracker struct {
	values map[fieldKey]string
}

func NewTracker() *Tracker {
	return &Tracker{values: make(map[fieldKey]string)}
}

// Focus records the value the field had when it gained focus.
func (t *Tracker) Focus(tabID int, fieldID, value string) {
	t.values[fieldKey{tabID, fieldID}] = value
}

// Change stores value as the field's current value and returns the one it
// replaces. ok is false when the field was never focused.
func (t *Tracker) Change(tabID int, fieldID, value string) (previous string, ok bool) {
	key := fieldKey{tabID, fieldID}
	previous, ok = t.values[key]
	t.values[key] = value
	return previous, ok
}

func (t *Tracker) Blur(tabID int, fieldID string) {
	delete(t.values, fieldKey{tabID, fieldID})
}

// ForgetTab drops every field of a closed tab.
func (t *Tracker) ForgetTab(tabID int) {
	for key := range t.values {
		if key.tabID == tabID {
			delete(t.values, key)
		}
	}
}

func (t *Tracker) Len() int {
	return len(t.values)
}

func (t *Tracker) Reset() {
	t.values = make(map[fieldKey]string)
}
