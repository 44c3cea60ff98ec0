// Package harness runs conformance scenarios: named traversals from a
// catalog executed over a graph in standard and computer mode.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: out-name-counts
//	description: "one hop names counted in both modes"
//	traversal: out-name-counts   # a catalog name
//	graph: modern                # or a JSON graph document
//	backends: [memory, sqlite]   # default [memory]
//	modes: [standard, computer]  # default both
//	partitions: [1, 3, 7]        # computer mode only, default [1, 3]
//	expect:
//	  count: 1
//	  values: [...]              # or error: E104
//	golden: true
//
// Every run must agree with the first one after normalization, which
// sorts results of unordered traversals. Golden scenarios also compare
// the agreed values with golden/<name>.golden next to the scenario file.
//
// # Usage
//
//	scenarios, err := harness.LoadScenarios("testdata", "")
//	...
//	res, err := harness.Run(ctx, scenarios[0])
//	if !res.Pass {
//	    for _, e := range res.Errors {
//	        log.Println(e)
//	    }
//	}
package harness
