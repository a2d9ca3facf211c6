// Package ui implements the live sync dashboard using bubbletea's Elm
// architecture.
//
// The dashboard runs one sync cycle and renders a row per playlist pair,
// updated in real time from the engine's progress channel. The [Model]
// implements bubbletea's standard Init/Update/View pattern; progress
// updates flow through a channel from the Engine, providing non-blocking
// status reporting while the cycle runs.
package ui
