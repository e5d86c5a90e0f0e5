// Package routing implements the courier message router: request/reply
// correlation with timeout eviction, consumer-tag based dispatch of inbound
// deliveries, and the single-flight reply-queue bootstrap a router performs
// before issuing its first request.
//
// A Router owns two tables. The pending table matches asynchronous replies
// back to the caller that issued the request; settlement of each entry is
// exactly-once under a race between a broker-delivered reply, the request's
// timer, and a send-failure rollback. The consumer table maps an inbound
// delivery's consumer tag to the handler registered for it.
//
// State is per Router instance. Multiple routers may coexist in a process
// with fully independent tables and event buses.
package routing
