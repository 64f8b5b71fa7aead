// Package viz renders terminal output for the temsim CLI.
//
//   - [RenderViolations]: one line per rejected parameter
//   - [RunSummary]: boxed summary of a finished or stored run
//   - [DefocusPlot]: ASCII plot of a sampled defocus distribution
//
// Colors follow the terminal's capabilities; when output is not a TTY the
// text is rendered plain.
package viz
