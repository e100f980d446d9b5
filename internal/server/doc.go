// Package server provides HTTP routing, middleware, and the relay's route
// handlers.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation registers method-qualified patterns
// ("GET /spotify") on an [http.ServeMux], which enforces method matching and
// exposes path values to handlers.
//
// # Route Handlers
//
// [AuthHandler] serves the login redirect and the OAuth2 callback for the
// long-running relay. [PlayerHandler] serves the player surface: top tracks
// plus current playback, the pause and play commands, and the history log.
//
// Handlers alone decide the HTTP-level response for auth outcomes: an
// unrecoverable credential becomes a redirect to /login on the read surface
// and a JSON error on the command surface. Every failure path produces either
// a redirect or a JSON error body.
//
// # CLI Callback Handler
//
// [CallbackHandler] implements the one-shot OAuth2 callback used by the CLI
// login flow: it validates the state parameter, exchanges the authorization
// code through an injected [ExchangeFunc], and delivers the result over a
// channel. It processes only one callback to prevent replay.
package server
