// Package interconnect assembles block diagrams of named systems into a
// single state-space model.
//
// Components are LTI systems registered by name. External inputs are named
// vector signals. Every component input and every external output is a signed
// (or scaled) sum of named signals, optionally sliced:
//
//	[wt; wu; yref - plant]
//	plant(2:3)
//	0.5*u - d
//
// Wiring strings are parsed once into [Expr] values; the builder only works
// on the typed form.
//
// # Example
//
//	b := interconnect.NewBuilder()
//	b.AddInput("yref", 1)
//	b.AddInput("u", 1)
//	b.AddComponent("plant", plant)
//	b.AddComponent("wt", wt)
//	b.Connect("plant", interconnect.MustParseList("[u]"))
//	b.Connect("wt", interconnect.MustParseList("[plant]"))
//	b.AddOutput(interconnect.MustParseList("[wt; yref - plant]")...)
//	p, err := b.Build(interconnect.BuildOptions{Minimal: true})
//
// # Thread Safety
//
// A [Builder] is NOT safe for concurrent use. The systems it returns are
// immutable.
package interconnect
