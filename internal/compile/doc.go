// Package compile turns the content directory into a site bundle.
//
// Context is the persistent incremental compiler used by the build
// scheduler: each Compile re-renders only the markdown files whose size or
// modification time changed and writes bundle.json (plus bundle.json.map)
// to the build directory. Loader materializes a bundle into the output
// directory as HTML pages and static assets.
package compile
