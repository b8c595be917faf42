// Package poller runs the named polling channels of the client.
//
// Each channel is a goroutine that runs its fetch immediately on Start and
// then once per period. The fetch runs synchronously inside the goroutine,
// so a channel never has two fetches in flight; ticks that arrive while a
// fetch is running are dropped. A fetch only runs while the scheduler's gate
// (normally "session is authenticated") is open.
//
// Stop cancels the context handed to the running fetch and prevents any
// further fetch. Stop does not wait for the goroutine to exit, so it is safe
// to call from inside a fetch; consumers must check ctx.Err() under their
// own lock before applying results.
package poller
