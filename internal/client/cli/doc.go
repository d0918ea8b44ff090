// Package cli implements sharectl, the command-line front end of the share
// coordinator.
//
// The serve command runs the coordinator as a long-lived process: it resumes
// requests left over from a previous run, reclaims orphans, and exposes the
// host bridge and metrics endpoints. The remaining commands are one-shot
// helpers for the host side: writing preferences into the shared bucket,
// storing secrets and client certificates, and submitting a share request
// either in-process or through a running bridge.
package cli
