// Package harness replays scripted arena scenarios against the real engine.
//
// A scenario drives players through matchmaking and sessions on a fake
// clock, records every message the engine delivers, and checks assertions
// against that transcript and the final Score Store contents.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: two_player_round
//	description: "What this scenario validates"
//	rules:
//	  winning_score: 300
//	problems:
//	  - numbers: [2, 3, 4, 5]
//	    operations: ["+", "*", "-"]
//	setup:
//	  - name: veteran
//	    score: 900
//	    won: true
//	steps:
//	  - action: join
//	    conn: c1
//	    name: alice
//	  - action: wait
//	    for: 8s
//	  - action: submit
//	    conn: c1
//	    answer: 15
//	assertions:
//	  - type: delivered
//	    conn: c1
//	    message: answer-result
//	    count: 1
//	  - type: final_record
//	    player: alice
//	    expect: { wins: 1 }
//
// # Steps
//
//   - join: queue conn under name (normalised as the gateway would)
//   - leave: withdraw conn from matchmaking
//   - submit: answer the current problem of conn's session
//   - disconnect: drop conn
//   - end: force-end a session, optionally crediting winner
//   - wait: advance the clock, firing every timer due on the way
//
// # Assertion Types
//
//   - delivered: a message type reached conn exactly count times
//   - delivery_order: message types reached conn in the given order
//   - delivery_contains: some message of the type carries the payload subset
//   - final_record: the stored record of player matches the expect subset
//
// # Deterministic Testing
//
// Session ids are s1, s2, ... in creation order; time starts at
// testutil.Epoch; problems are handed out from the scenario list in order,
// cycling. Identical scenarios produce byte-identical transcripts, which
// RunWithGolden compares against testdata golden files.
package harness
