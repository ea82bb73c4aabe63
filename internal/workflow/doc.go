// Package workflow drives releases through the posting pipeline.
//
// The Coordinator reads releases from the scanner, enqueues them in the job
// store, and hands them to a bounded pool of workers. Each worker advances one
// release through parity, post, verify, and organize, persisting a checkpoint
// after every stage so an interrupted run resumes where it stopped. Failed
// stages are retried according to the retry policy with an injected sleeper.
//
// Stopping a run (cancelling the context passed to Run) stops new releases
// immediately. Running stages get workflow.stop_grace to finish before their
// context is cancelled, which terminates the external tools; interrupted
// releases are rolled back to their last durable state.
package workflow
