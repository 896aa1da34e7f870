// Package vauth holds the signed-in identity of the storefront and runs the
// login, logout, startup validation and password reset flows.
//
// # States
//
// A Manager starts Unknown. Start settles it to Anonymous or Authenticated
// and every later change goes through a declared transition:
//
//	Unknown       -> Authenticated  validated, login
//	Unknown       -> Anonymous      no-session, validation-failed, logout
//	Anonymous     -> Authenticated  login
//	Authenticated -> Anonymous      logout, expired
//	Authenticated -> Authenticated  login, replaced
//
// Each committed transition is published to subscribers as a vdef.Event, in
// commit order, on the goroutine that committed it. The Manager never
// navigates; a router adapter such as vguard.Follow subscribes and does.
//
// # Password reset
//
// The reset flow keeps one ticket in the credential store. Each step checks
// that the ticket holds the stage of the step before it, calls the backend,
// then overwrites or deletes the ticket. The flow does not depend on, or
// change, the signed-in state.
package vauth
