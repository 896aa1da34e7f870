// Package vsession is the session and access control core of the
// ViiCommerce storefront client.
//
// The packages fit together as follows:
//
//   - vstore holds key/value backends with optional encryption at rest.
//   - CredentialStore in this package keeps the session identifier, the
//     has-session marker and the password reset ticket in a vstore.DataStore.
//   - vclient performs the HTTP calls and signs each request with the
//     identifier read fresh from the CredentialStore.
//   - vauth.Manager owns the in-memory identity and the session state machine.
//   - vguard decides, per route, whether to render or redirect, and adapts
//     session transitions into navigation.
//
// A typical composition root:
//
//	ds, _ := vstore.Open(vstore.KindFile, "")
//	creds, _ := vsession.NewCredentialStore(vsession.CredentialConfig{Store: ds})
//	client, _ := vclient.New(vclient.Config{BaseURL: url, Session: creds})
//	mgr, _ := vauth.NewManager(vauth.Config{Client: client, Credentials: creds})
//	mgr.Start(ctx)
//	guard := vguard.New(mgr, vguard.DefaultHomes())
package vsession
