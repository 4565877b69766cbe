// Package server hosts the Fiber HTTP front end of the docs store. It owns the
// request middleware chain (request id, access log, request counter), turns
// store errors into a JSON error envelope, and exposes document routes under
// /docs plus admin routes (backups, cache, refresh, metrics) under /-/.
// Handlers only translate between HTTP and docstore calls; they hold no state.
package server
