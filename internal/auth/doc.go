// Package auth implements the credential lifecycle for the relay's single
// Spotify login: obtaining, caching, refreshing, and re-applying the OAuth2
// bearer token across outbound API calls.
//
// # Token Store
//
// [TokenStore] is the single source of truth for the current [Credential].
// The process holds at most one credential (single-tenant); reads and writes
// are serialized so two concurrent refreshes can never produce a torn record.
// No expiry is tracked: expiry is discovered reactively when the API rejects
// a request.
//
// # Token Refresher
//
// [Refresher] performs the two OAuth2 grants against the Spotify accounts
// service: the authorization-code exchange ([Refresher.ExchangeCode], via
// [oauth2.Config]) and the refresh grant ([Refresher.Refresh]). A refresh
// writes the new access token into the store and preserves the stored refresh
// token unless the provider rotates it. Concurrent refreshes are coalesced:
// the grant runs under a mutex and callers that lost the race receive the
// winner's token without a second network call, since Spotify may revoke a
// refresh token that is exchanged twice in parallel.
//
// # Request Executor
//
// [Executor.Execute] issues one outbound request with the current access
// token and recovers from an expired token with at most one
// refresh-and-retry cycle. The result is an [Outcome] tagged with how the
// call concluded; route handlers alone decide the HTTP-level response
// (redirect vs JSON) based on the tag.
//
// # Error Handling
//
// Typed errors from the shared package:
//   - [shared.ErrNoRefreshToken] : refresh requested with nothing to exchange
//   - [shared.ErrRefreshFailed] : provider rejected the refresh grant
//   - [shared.ErrAuthFailed] : authorization-code exchange failed
//   - [shared.ErrAPIRequest] : transport-level failure reaching the API
package auth
