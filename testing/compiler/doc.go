/*
Package compiler builds helper binaries for tests, such as the fake search server
that process supervision tests spawn.

Binaries are written to a temporary folder that Cleanup removes. Several binaries can
be built concurrently with CompileAll.
*/
package compiler
