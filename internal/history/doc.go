// Package history keeps a local record of every item update the bridge
// publishes.
//
// Updates are stored in the SQLite update_history table created by the
// embedded migrations. The repository implements the bridge's Publisher
// interface so it can be added as a publish sink, and serves the item
// history endpoint of the status API.
package history
