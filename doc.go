// Package dataloader provides an orchestration layer between request
// producers and an HTTP transport:
//
//   - One cancellation token per request, idempotent and identity-based
//   - Optional asynchronous authorisation handshake before dispatch
//   - Per-host rate limiting consulted at response-metadata time, with
//     Retry-After feedback from 429/503 responses
//   - Host resolution with the original host preserved in the Host header
//   - Bounded concurrent transfers with ordered per-task callbacks
//   - Buffered or streamed body delivery, chosen per request
//   - Prometheus metrics and lightweight structured debug logging
//
// Design goals:
//   - Exactly one terminal callback per request, success or failure
//   - The service is reactive: no long-lived goroutines, callers never block
//   - Operational failures flow to the handler; errors are returned only
//     for caller misuse
//   - Pluggable transport, rate limiter, resolver, logger and metrics
//
// Typical usage:
//
//	service := dataloader.New(
//	    dataloader.WithMaxConcurrentTransfers(16),
//	    dataloader.WithHostRate("api.example.com", 20, 40),
//	    dataloader.WithSimpleLogger(),
//	)
//	token, err := service.Perform(dataloader.NewRequest("https://api.example.com/data"), handler)
//
// The handler's ReceivedResponse or FailedResponse fires exactly once per
// performed request; token.Cancel() aborts the transfer at the next safe
// point. Handlers that also implement Authoriser take part in the
// authorisation handshake, and handlers implementing ChunkReceiver can stream
// bodies by setting Request.StreamChunks.
package dataloader
