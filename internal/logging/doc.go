// Package logging provides the slog front-end shared by all hopper
// components: console and JSON handlers, attribute helpers, and
// context-derived correlation fields (component, batch, stage, file).
package logging
