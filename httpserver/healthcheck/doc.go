/*
Package healthcheck serves /live and /ready endpoints built from the health checks
registered with a system, such as the supervised search server.
*/
package healthcheck
