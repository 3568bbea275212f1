// Package denoise drops accidental and redundant interactions from a stored
// event stream. Each rule is a separate pass over the output of the previous
// one, and a pass judges an event by its neighbours in that pass's input.
package denoise

import (
	"sort"

	"github.com/vincentbai/browsetrace-core/internal/models"
)

const (
	// RapidClickWindow is the gap, in ms, under which a repeated click on the
	// same element is a double fire.
	RapidClickWindow = 200
	// TransientSwitchWindow is how long, in ms, a tab must stay active before
	// the next switch for its switch to count.
	TransientSwitchWindow = 2000
	// AccidentalWindow is the gap, in ms, under which any event following
	// another is treated as accidental.
	AccidentalWindow = 100
	// MaxSameElementClicks is the longest run of clicks on one element kept.
	MaxSameElementClicks = 3

	transientLookahead  = 4
	consecutiveLookback = 9
)

type rule func(events []models.InteractionEvent, i int) bool

var rules = []rule{rapidClick, transientTabSwitch, accidental, excessiveClicks}

// Filter returns events sorted oldest first with noise removed. The input
// slice is left untouched.
func Filter(events []models.InteractionEvent) []models.InteractionEvent {
	out := make([]models.InteractionEvent, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})

	for _, drop := range rules {
		if len(out) < 2 {
			break
		}
		kept := make([]models.InteractionEvent, 0, len(out))
		for i := range out {
			if !drop(out, i) {
				kept = append(kept, out[i])
			}
		}
		out = kept
	}
	return out
}

func rapidClick(events []models.InteractionEvent, i int) bool {
	if i == 0 || events[i].Type != models.TypeClick {
		return false
	}
	previous := events[i-1]
	return previous.Type == models.TypeClick &&
		events[i].Timestamp-previous.Timestamp <= RapidClickWindow &&
		sameElement(events[i], previous)
}

// transientTabSwitch reports a switch that another switch follows within the
// transient window and the next few events.
func transientTabSwitch(events []models.InteractionEvent, i int) bool {
	if events[i].Type != models.TypeTabSwitch {
		return false
	}
	for j := i + 1; j < len(events) && j <= i+transientLookahead; j++ {
		if events[j].Type == models.TypeTabSwitch && events[j].Timestamp-events[i].Timestamp < TransientSwitchWindow {
			return true
		}
	}
	return false
}

func accidental(events []models.InteractionEvent, i int) bool {
	return i > 0 && events[i].Timestamp-events[i-1].Timestamp < AccidentalWindow
}

func excessiveClicks(events []models.InteractionEvent, i int) bool {
	if events[i].Type != models.TypeClick {
		return false
	}
	run := 1
	for j := i - 1; j >= 0 && j >= i-consecutiveLookback; j-- {
		if events[j].Type != models.TypeClick || !sameElement(events[i], events[j]) {
			break
		}
		run++
	}
	return run > MaxSameElementClicks
}

// sameElement compares payload.element by id, then by tag and className.
func sameElement(a, b models.InteractionEvent) bool {
	first, ok := a.Payload["element"].(map[string]any)
	if !ok {
		return false
	}
	second, ok := b.Payload["element"].(map[string]any)
	if !ok {
		return false
	}
	if id := field(first, "id"); id != "" && id == field(second, "id") {
		return true
	}
	class := field(first, "className")
	return class != "" && class == field(second, "className") && field(first, "tag") == field(second, "tag")
}

func field(element map[string]any, key string) string {
	value, _ := element[key].(string)
	return value
}
