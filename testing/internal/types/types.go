// Package types holds the test interfaces shared by the fixtures.
package types

// TestingTB is the part of testing.TB the fixtures use. Taking an interface lets
// the fixtures run under other test runners, and lets their skip paths be tested.
type TestingTB interface {
	Cleanup(func())
	Fail()
	FailNow()
	Failed() bool
	Fatal(args ...interface{})
	Helper()
	Log(args ...interface{})
	Logf(format string, args ...interface{})
	Name() string
	Skip(args ...interface{})
}
