// Package loom is a terminal UI rendering kernel and runtime core: a
// cache-packed cell buffer with dirty-row diffing, a state-tracked ANSI
// presenter that minimizes emitted bytes, a cooperative model/update/view
// runtime with resize coalescing and frame-budget degradation, and a
// scoped terminal session that guarantees restoration on every exit path.
//
// Applications implement Model and hand it to NewProgram; widget code
// draws through the Frame passed to View. Widgets, themes and layout live
// outside this package and consume the Frame API.
package loom
