// Package client is the transport layer of the tacticallink client.
//
// # Overview
//
//  1. The Client interface is the request/response contract of the backend:
//     auth, directory, direct and room messaging, threat status and the
//     admin dashboard.
//  2. HTTPClient implements it over JSON/HTTP. It reads the bearer token
//     from a CredentialSource when each request is built, tags requests with
//     an X-Request-ID, and wraps the transport in a circuit breaker.
//  3. Each endpoint has a decoded record type (records.go) that is validated
//     and normalized into models values before anything else sees it.
//  4. InitDatabase and RunMigrations bootstrap the local sqlite database.
//
// # Error Handling
//
// Errors wrap one of ErrUnauthorized, ErrUnavailable, ErrValidation,
// ErrNotFound, ErrForbidden or ErrMalformedResponse; server answers also
// carry an *APIError with the reported reason. A credential rejection is
// additionally reported to the CredentialSource with the token that was
// rejected.
package client
