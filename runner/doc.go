// Package runner executes NUnit test runs against the console runner.
//
// The main components are:
//   - Executor: runs the external console runner for one invocation
//   - Dispatcher: runs work items through a bounded worker pool and collects one outcome per item
//   - InFlight: tracks the work items currently executing
//   - RetryCoordinator: reruns failed cases in one invocation and patches their original reports
//   - Runner: ties dispatch and retry together into a RunResult
//
// Reports are only touched in phase order: the dispatcher's invocations write
// them, the retry coordinator patches them after dispatch has returned.
package runner
