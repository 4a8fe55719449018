// Package sync implements the transfer jobs that move project data
// between a local project directory and a Mergin server.
//
// Three jobs exist:
//
//   - DownloadJob: fetch a full project version into a fresh directory
//   - PullJob: fetch server changes into an existing project, applying
//     them with conflict-copy backups
//   - PushJob: upload local changes through the server's chunked push
//     transaction protocol
//
// Each job is planned first (its total transfer size is known before any
// byte moves) and then run to completion with Run. Transfers execute on
// a bounded errgroup worker pool; large files are split into ranged
// chunks so several workers can move one file in parallel. Progress is
// exposed through an atomic byte counter that callers may poll from
// another goroutine while Run blocks, which is how the CLI drives its
// progress bar. Cancelling the context passed to Run aborts the job;
// PushJob additionally rolls back its server transaction.
package sync
