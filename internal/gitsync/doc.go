// Package gitsync commits, pulls and pushes the site repository.
//
// The content directory is kept out of the working tree while a pull runs
// (see contentstore.Store.Detach), so a merge can never see or clobber user
// content that is not yet tracked. Every failure restores the content
// directory before it is reported.
package gitsync
