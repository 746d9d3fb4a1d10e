// Package auth verifies bearer tokens for the dashboard API.
//
// Tokens are HS256 JWTs signed with a shared secret. An empty secret
// disables authentication entirely, which is the expected mode on a
// closed bench network.
package auth
