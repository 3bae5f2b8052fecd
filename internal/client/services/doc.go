// Package services holds the sync engine: the state machine that decides
// whether a submission is delivered now or queued, and that drains the queue
// once connectivity returns.
//
// A submission attempt moves Pending → Sending → Delivered | Queued. Transport
// failures of any kind are recoverable: the payload is queued and retried on
// the next drain, without backoff or a retry cap. Storage failures are not
// recoverable and are returned to the caller.
package services
