// Package contentstore relocates the user's content directory to and from a
// single-slot cache mirror.
//
// Operations that must not see user content (a git merge, a bundler rebuild)
// run inside Store.Detach, which stashes the content directory, runs the
// operation and restores the content on every exit path.
//
// The mirror holds a full copy of the prior content state if and only if the
// content directory is absent. Relocation is a rename when source and mirror
// share a filesystem; otherwise a staged copy is completed under a ".partial"
// name and renamed into place before the source is removed, so the mirror is
// never observed half-written. A process crash between steps can still leave
// content only in the mirror; `sitebuilder restore` recovers it.
package contentstore
