// Package providers holds the OAuth2 token client shared by every provider
// configured under providers.<name> in the integrations config.
package providers
