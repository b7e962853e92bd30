/*
Package dsl provides a fluent Go builder for bonsai charts.

It produces the same canonical YAML a chart author would write, which keeps
programmatic charts usable with every loader, the validator and the graph
exporter. It is mostly useful for tests and for charts generated at runtime.

Example usage:

	b := dsl.New("fetch")
	b.Option("Wait#settle", "duration", "'200ms'")

	b.Add("Wait#settle").On("Wait.SUCCESS", "Nav#kitchen")
	b.Add("Nav#kitchen").
		On("Nav.SUCCESS", "End").
		On("Nav.ERROR.*", "Fatal")
	b.Add("End")
	b.Add("Fatal")

	loader, err := b.Loader("fetch.yaml")
	// ... pass loader to bonsai.New("fetch.yaml", bonsai.WithLoader(loader))
*/
package dsl
