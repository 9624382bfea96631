// Package dom is a minimal, Go-native stand-in for the browser DOM.
//
// It models only what browser-oriented libraries touch while they load and
// query device information: element creation, attributes, a child tree,
// inline style, class lists and event listener registration. Nothing is laid
// out or rendered. The JavaScript bindings live in package jshost; the types
// here carry no engine dependency so they can be built and inspected from
// plain Go.
package dom
