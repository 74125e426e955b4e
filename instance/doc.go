/*
Package instance supervises a single search server process.

A Supervisor resolves the server binary, spawns it in its own process group with
"-E key=value" overrides derived from Config, and waits for it to become ready. Two
detectors race for readiness: a scan of standard output for a "started" marker and an
HTTP probe of the bind address. Whichever succeeds first wins. The run fails if the
process exits before either fires, or once the probe attempt budget is exhausted.

	s := instance.New(resolver, instance.Config{IP: "127.0.0.1", Port: 9200, DataDir: dir})
	if err := s.Run(ctx); err != nil {
		return err
	}
	defer s.Kill(ctx)

Kill sends SIGTERM to the process group and escalates to SIGKILL after
Config.KillTimeout. It always waits for the process to exit.
*/
package instance
