// Package runspace manages the lifecycle of remote runspaces.
//
// # Overview
//
// A runspace is a remote PowerShell session held by the service. Creating one
// is asynchronous: the service answers immediately with a runspace in the
// Creating state and finishes the setup in the background. The Manager hides
// that behind Open, which authenticates, creates and polls until the runspace
// leaves Creating, and Close, which deletes it exactly once.
//
// # State Machine
//
// A Session moves through the following states:
//
//	Creating: create request accepted, setup in progress
//	  │
//	  ├─→ Ready: scripts can be submitted
//	  │     │
//	  │     └─→ Deleting: Close in progress
//	  │           │
//	  │           └─→ Deleted: runspace released
//	  │
//	  └─→ Error: setup failed, nothing to release
//
// The service's Active state (a runspace currently running a script) is
// observed as Ready. Creating → Ready and Creating → Error are only ever
// observed through polling; there is no push notification.
//
// # Usage Example
//
//	api, _ := client.New(client.Config{BaseURL: "https://srs.example.com"})
//	mgr := runspace.NewManager(api)
//
//	err := mgr.Use(ctx, cred, runspace.DefaultSessionConfig(), func(ctx context.Context, s *runspace.Session) error {
//	    // submit work against s
//	    return nil
//	})
//
// Use releases the runspace on every exit path, including panics. Callers
// that need the session outside a callback pair Open with a deferred Close.
//
// # Error Handling
//
// Open returns coded errors from package errors:
//
//   - AUTH_FAILED: the credential was rejected
//   - RUNSPACE_CREATION_FAILED: the runspace reported Error; Reason carries the server detail
//   - POLL_TIMEOUT: the runspace stayed in Creating past the poll bound
//   - TRANSPORT_ERROR: a request failed
//
// When Open fails after the create call for any reason other than a reported
// Error state, it deletes the half-created runspace on a best-effort basis.
//
// Close failures are RUNSPACE_DELETION_FAILED. They are logged as a leaked
// resource and reported to the security event callback, and never escalate
// the workflow's outcome.
//
// # Thread Safety
//
// Manager and Session methods are safe for concurrent use. Close on a
// Session is guarded so that at most one delete request is ever sent.
package runspace
