// Package scheduler runs periodic jobs from cron expressions.
//
// Expressions carry a leading seconds field, so the daily reconnect sweep is
// written "0 0 0 * * *". Descriptors such as "@hourly" and "@every 10m" are
// also accepted.
//
// A panicking job is recovered and logged; it does not stop the scheduler.
package scheduler
