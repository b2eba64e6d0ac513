// Package event defines Event, the sole inter-agent message, together with
// its supporting types: dot-separated topic patterns with * and **
// wildcards, delivery options, the typed payload sum type, and the
// CloudEvents JSON wire mapping.
//
// Events are immutable values. Once constructed with New, an Event's
// fields never change; consumers always see the exact snapshot that was
// published.
package event
