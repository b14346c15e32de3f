/*
Package engine runs beatbox sessions in real time.

A Session owns the tick, beat, bar and part cyclers of one timing hierarchy and
a goroutine that advances them at the interval implied by the tempo. On every
tick, each attached player is asked whether it plays: its rules are tested
against the position, then mute and solo, skip, probability and sparse are
applied, and finally the note is sent to the player's instrument, possibly
delayed by swing and repeated by ratcheting. Note offs are scheduled after the
gate length.

Sessions report what they do on a Bus: tick, beat, bar and part advances,
transport changes, and changes to players and rules. The bus is either
synchronous or dispatches every delivery to a worker pool; listeners doing I/O
should be attached to an asynchronous bus, so they cannot delay the clock.

The clock goroutine is the only writer of the cyclers. Everything else a
session holds (its config, its players) is published as immutable snapshots
through atomic pointers, so reading and modifying a session while it plays is
safe and never blocks the clock.
*/
package engine
