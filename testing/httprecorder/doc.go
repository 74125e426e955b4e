/*
Package httprecorder records the requests sent to an HTTP handler so tests can
later assert on them, e.g. how many readiness probes reached a fake server or
which artifact URL a download hit.
*/
package httprecorder
