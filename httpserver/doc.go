/*
Package httpserver runs HTTP servers that shut down gracefully when their context ends.

It backs the admin API of the esmem command and the fake search server used in tests.
*/
package httpserver
