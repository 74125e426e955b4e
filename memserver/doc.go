/*
Package memserver runs a throwaway search server for a test session.

A Server owns at most one running instance at a time. It picks a free port, allocates
a temporary data directory when none is given, and removes that directory again on Stop.

	srv := memserver.New(memserver.Options{})
	uri, err := srv.URI(ctx)
	if err != nil {
		return err
	}
	defer srv.Stop(ctx)

Start fails with ErrAlreadyStarted while a session is active or starting. EnsureInstance
and URI never start a second process; they wait for the in-flight start instead.
*/
package memserver
