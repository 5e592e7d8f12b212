// Package report renders synthesis results for terminals and files.
//
// SigmaPlot and MuPlot draw ASCII charts with asciigraph, Summary formats
// the headline numbers with lipgloss, SavePlot writes a gonum/plot singular
// value plot on a logarithmic frequency axis and WriteCSV dumps singular
// values for external tools.
package report
