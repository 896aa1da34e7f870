package vsession

import (
	"sync"
	"time"
)

var timeMu sync.RWMutex

// fakeTime overrides timeNow in tests when not nil.
var fakeTime *time.Time

func timeNow() time.Time {
	timeMu.RLock()
	defer timeMu.RUnlock()
	if fakeTime != nil {
		return *fakeTime
	}
	return time.Now()
}

// setFakeTime pins timeNow to t and returns a function restoring real time.
func setFakeTime(t time.Time) func() {
	timeMu.Lock()
	defer timeMu.Unlock()
	fakeTime = &t
	return func() {
		timeMu.Lock()
		defer timeMu.Unlock()
		fakeTime = nil
	}
}

// advanceFakeTime moves the pinned time forward. Panics if time is not pinned.
func advanceFakeTime(d time.Duration) {
	timeMu.Lock()
	defer timeMu.Unlock()
	if fakeTime == nil {
		panic("advanceFakeTime called without setFakeTime")
	}
	next := fakeTime.Add(d)
	fakeTime = &next
}
