// Package listener holds the services supervised next to the update loop.
// Each of them runs until the shutdown signal and may ask for an immediate
// update, a restart of the daemon or its exit.
package listener
