// Package game is a small reference application on top of the runtime.
//
// It implements the command surface of a small bookstore scene: a
// Session model, an Exploring state that accepts move, examine, talk and
// pause commands, a Dialogue state and a PauseMenu state. States never
// mutate the session's attributes or location directly. They publish
// events, and the Session applies them when the bus drains, so events
// arriving from scripts or the Kafka bridge change the same model.
package game
