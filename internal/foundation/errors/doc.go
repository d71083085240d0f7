// Package errors provides the classified error primitives used across sitebuilder.
//
// Every fatal condition of the tool (content stash/restore failures, git
// subprocess failures, compile failures, bad configuration) is surfaced as a
// ClassifiedError so the CLI can print a plain-language reason and exit with a
// non-zero status.
//
// Example usage:
//
//	err := errors.GitError("pull failed").
//		WithCause(runErr).
//		WithContext("remote", remote).
//		Build()
package errors
