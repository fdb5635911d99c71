// Package harness runs YAML scenarios against the object repository.
//
// A scenario names the CUE schemas it needs, runs a list of save, update
// and find steps against a fresh in-memory SQLite store, and then asserts
// on the keys left behind. The final keyspace is rendered as canonical
// JSON so it can be compared byte for byte with a golden file.
//
// # Scenario Format
//
//	name: color-cleared
//	description: Clearing a color removes the id from its index set
//	schemas:
//	  - car.cue
//	repository:
//	  write_mode: merge
//	  stale_cleanup: false
//	steps:
//	  - save: Car
//	    values: {color: red, make: Volvo}
//	  - update: Car
//	    id: 1
//	    set: {color: null}
//	  - find: Car
//	    id: 1
//	    expect: {color: null, make: Volvo}
//	assertions:
//	  - type: set_excludes
//	    key: "color:red"
//	    member: "1"
//	  - type: record
//	    key: "car:1"
//	    fields: {color: "", make: Volvo}
//
// Save steps without an identifier get "1", "2", ... in step order. A step
// with error: set must fail with an error containing that text.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/color-cleared.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, err := range result.Errors {
//	        log.Println(err)
//	    }
//	}
package harness
