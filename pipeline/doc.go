// Package pipeline runs scripts inside a remote runspace.
//
// A Job is one script execution. Submitting is asynchronous: the service
// accepts the script and answers with a Running execution. The Runner polls
// it until it finishes and then retrieves its output.
//
// # State Machine
//
// A Job follows this state transition:
//
//	Running → Success
//	   │
//	   ├────→ Error
//	   │
//	   └────→ Cancelled
//
// Terminal states never change again. Error and Cancelled are outcomes, not
// failures of the Runner: Await returns them as values and leaves the
// decision to the caller.
//
// # Usage
//
//	runner := pipeline.NewRunner(api, pipeline.WithStreams(messages.StreamError, messages.StreamWarning))
//
//	job, err := runner.Submit(ctx, session, pipeline.Script{Text: "Get-VM"})
//	if err != nil {
//	    return err
//	}
//
//	job, err = runner.Await(ctx, job)
//	if err != nil {
//	    return err
//	}
//
//	out, err := runner.FetchOutput(ctx, job)
//
// # Output
//
// Output is only available for terminal jobs. FetchOutput makes one request
// for the output lines and one per configured stream (only the error stream
// by default). The result is cached per job, so repeated calls are free and
// return identical content.
package pipeline
