/*
Package system manages the startup, running and shutdown of a long running esmem process.

Services (HTTP servers, the supervised search server) are added before Run. Run blocks
until one of them fails or the process is told to terminate, after which Cleanup runs
the registered cleanups in reverse order, so resources added last are released first.
*/
package system
