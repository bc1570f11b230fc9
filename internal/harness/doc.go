// Package harness runs scripted play sessions against the game rules.
//
// A scenario sets up a starting state, runs a list of steps on a
// scenario clock and checks the outcome. Every step is recorded in a
// trace that can be compared with a golden file. After each step the
// harness checks the state invariants (non-negative currency, experience
// below the level threshold, yields derived from the ledgers and so on),
// so any scenario doubles as a property check.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	setup:
//	  currency: 80
//	  upgrades: { stronger_click: 1 }
//	steps:
//	  - action: click
//	    times: 3
//	    expect:
//	      status: ok
//	      state: { currency: 83 }
//	  - action: tick
//	    duration: 10s
//	assertions:
//	  - type: trace_contains
//	    action: purchase
//	    status: insufficient_funds
//	  - type: final_state
//	    expect: { species: espeon, level: 5 }
//
// # Actions
//
// click, purchase, purchase_prestige, start_minigame, complete_minigame,
// ascend, change_settings and reset call the matching reducer. tick
// moves the clock and applies passive accrual, wait only moves the
// clock, and offline saves, moves the clock and applies offline
// catch-up as a restart would.
//
// # Assertion Types
//
//   - trace_contains: a step ran the action (with the status, when given)
//   - trace_order: actions appear in the specified order
//   - trace_count: an action ran exactly N times
//   - final_state: a subset of the final snapshot
//
// # Deterministic Testing
//
// The clock starts at the scenario's start time and moves only on tick,
// wait and offline. Clicks never crit unless the step sets crit, and
// buff IDs derive from the step sequence. The same scenario therefore
// always produces the same trace.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/first_upgrade.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
