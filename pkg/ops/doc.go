// Package ops implements the built-in node types: generators that create
// geometry, modifiers that reshape it, and flow operators (merge, loop,
// code, edit, export).
//
// Every compute function clones its input before changing it. Register
// installs the whole library into a registry.
package ops
