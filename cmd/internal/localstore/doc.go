// Package localstore is the device-scoped encrypted key/value store.
//
// A Backend is the platform storage primitive (browser-origin storage
// analogue, SQLite file on native hosts, Redis for shared desktops) and is
// chosen once at construction time. Store layers per-install encryption on
// top and degrades every failure to "no data": it backs caches, never a
// source of truth.
package localstore
