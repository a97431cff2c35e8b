// Package integration provides integration tests for the web app update manager.
// These tests run the complete server against a mock snapshot service and drive
// update cycles through the HTTP API, from activation to delivery result.
package integration
