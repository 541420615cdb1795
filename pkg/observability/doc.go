/*
Package observability turns lifecycle events into Prometheus metrics and
structured log lines. Both are plain domain.LifecycleHooks, so they combine
with each other and with any caller hooks through domain.CombineHooks.
*/
package observability
