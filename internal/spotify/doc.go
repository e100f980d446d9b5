// Package spotify is the domain facade over the Spotify Web API player and
// personalization endpoints.
//
// Each operation builds a request spec, hands it to the [auth.Executor], and
// projects the provider response onto the small shapes the relay exposes.
// No auth logic lives here: expired tokens are recovered inside the executor,
// and an unrecoverable credential surfaces as [shared.ErrReauthRequired] for
// the route handler to turn into a login redirect.
//
// API response types based on https://developer.spotify.com/documentation/web-api/reference/
package spotify
