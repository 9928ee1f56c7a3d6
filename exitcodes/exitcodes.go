// Package exitcodes defines the exit codes used by op-nunit-runner.
package exitcodes

// Exit code constants used by op-nunit-runner
//
// * Success (0): every run succeeded, or every failure was fixed by the rerun
// * TestFailure (1): test cases still fail, or a run could not be started
// * RuntimeErr (2): configuration, I/O or report merging failures
const (
	Success     = 0 // All tests pass
	TestFailure = 1 // Test failures
	RuntimeErr  = 2 // Runtime errors
)
