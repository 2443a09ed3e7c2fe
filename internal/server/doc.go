// Package server hosts the Fiber HTTP surface the client talks to, the
// request middleware chain, and the bucket registry glue that wires config
// into per-bucket cache instances. The binary bootstraps Fiber here, attaches
// recover and request-ID middlewares, and exposes route constructors that
// other packages (main, routes) can reuse. Keep exports narrow and accept
// explicit dependencies so tests can inject fake queues and fetchers.
package server
