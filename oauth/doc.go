// Package oauth obtains bearer tokens with the OAuth 2.0 client credentials
// grant, authenticating the client with a signed JWT assertion
// (private_key_jwt, RFC 7523).
//
// The assertion is short-lived (120s) and freshly signed for every token
// request. The resulting bearer token is cached in process memory, keyed by
// (client id, scope), and reused until less than five seconds of its
// lifetime remain. Concurrent misses for the same key share one upstream
// request.
package oauth
