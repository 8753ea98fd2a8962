// Package watch drives rebuild-on-change: an fsnotify watcher over the
// project's source and asset roots, debounced so bursts of file events
// trigger one pipeline run. The core pipeline never depends on this
// package; it is the external collaborator that pokes the engine.
package watch
