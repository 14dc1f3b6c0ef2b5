// Package srs runs scripts on a remote Script Runtime Service.
//
// A run is one scoped workflow:
//
//  1. log in and create a runspace
//  2. wait for the runspace to leave Creating
//  3. submit the script and wait for it to leave Running
//  4. fetch and render its output
//  5. delete the runspace
//
// Step 5 happens on every path once the runspace exists, including failed
// jobs, timeouts and cancellation.
//
// # Basic Usage
//
//	cfg := config.Default()
//	c, err := srs.New("srs.example.com", cfg, srs.WithUI(host.NewConsole(os.Stdout)))
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	cred, _ := objects.NewPasswordCredential("admin", password)
//	res, err := c.Run(ctx, cred, pipeline.Script{Text: "Get-VM"})
//
// The building blocks live in their own packages: client for HTTP, runspace
// for sessions, pipeline for jobs and poll for the wait loops.
package srs

// Version is the library version.
const Version = "0.1.0-dev"
