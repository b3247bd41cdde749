// Package engine walks a script graph against a live display.
//
// Each step fans out one evaluation task per successor of the current
// node, waits for all of them, picks the lowest-priority result as the
// winner, and performs its effect:
//
//	┌───────────────────────────────────────────────────────────┐
//	│                     Engine.Run                             │
//	│  current = start                                           │
//	│  while current is not End:                                 │
//	│    ┌─────────────── fork (errgroup) ──────────────┐        │
//	│    │ evaluate(n1)   evaluate(n2)   evaluate(n3)   │        │
//	│    │  delay           delay          delay        │        │
//	│    │  [lock: capture + match, append]             │        │
//	│    │  wait            wait           wait         │        │
//	│    └─────────────── join ─────────────────────────┘        │
//	│    no results       → abort "no match"                     │
//	│    stable sort by priority, winner = first                 │
//	│    effect(winner)   (click / action / none), then wait     │
//	│    visits[winner]++ → abort "loop detected" past limit     │
//	└───────────────────────────────────────────────────────────┘
//
// Click candidates capture the screen and match while holding the step
// lock, so visual evaluation is serialized even though delays overlap.
// Effects always run one at a time on the goroutine that called Run.
//
// Equal priorities keep the order results were appended in, which
// depends on task timing. Options.DeterministicTies breaks such ties by
// node id instead.
package engine
