// Package identity manages the bridge's persistent identity.
//
// Every MQTT topic and Home Assistant unique_id the bridge publishes is
// derived from the bridge ID. If the ID changed between restarts, Home
// Assistant would register a duplicate copy of every device, so the ID is
// generated once, persisted in SQLite, and reused forever after.
//
// Identity resolution happens once at startup via Resolve. A storage
// failure there is deliberately fatal: an ephemeral identity does more
// damage than a refused start.
package identity
