package vauth

import "time"

// timeNow returns the current time. Tests override it to step the resend
// throttle without sleeping.
var timeNow = time.Now
