// Package livereload serves the built site for local preview and tells
// connected browsers to reload after every published build.
package livereload
