// Package events implements the engagement event ingestor.
//
// Every inbound notification (a synchronous dispatch result, a provider
// callback, a tracking pixel hit) is validated, keyed and appended to the
// event log at most once. The uniqueness constraint on the idempotency key
// is the only coordination between concurrent callers.
package events
