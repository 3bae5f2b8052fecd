// Package cli provides the interactive formsync client.
//
// It wires configuration, the local queue, the submission transport, the
// connectivity monitor and the asset cache, then runs a REPL that only calls
// into the submission service:
//
//   - submit / draft   capture a form and send or queue it
//   - list             show queued submissions
//   - retry / delete   act on one queued submission
//   - sync             drain the queue now
//   - status           connectivity and queue size
//
// Going back online drains the queue in the background. The REPL is started
// via App.Run(ctx), which blocks until the user exits.
package cli
