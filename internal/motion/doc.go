// Package motion synthesizes human-looking pointer movement.
//
// Trajectories follow the WindMouse model: a constant pull toward the
// destination (gravity) plus a random walk (wind). Far from the target
// the wind keeps changing direction; inside the slowdown radius it decays
// and the step limit shrinks so the cursor settles onto the target.
//
// Every source of randomness is an injected *rand.Rand, so a fixed seed
// reproduces a run exactly.
package motion
