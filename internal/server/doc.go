// Package server runs the loopback HTTP listener for OAuth2 authorization
// code flows.
//
// The login command starts a [Flow], sends the user to the provider's
// consent page, and waits for the redirect to hit the local callback. The
// callback handler validates the state token, exchanges the code, and hands
// the resulting token back through a channel; the listener then shuts down.
package server
