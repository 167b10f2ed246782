// Package oauth adapts OAuth2 authorization-code providers to the engine.
//
// A [Provider] exchanges a callback code for an access token, fetches the
// provider's user profile and returns it as a [goIdentity.OAuthProfile] for
// [goIdentity.Engine.OAuthSignIn]. Only emails the provider reports as
// verified are passed on; without one the engine rejects the sign-in.
//
// [Google] and [GitHub] fill in the endpoints of those providers.
// [LoadProvidersFromEnv] builds them from GOIDENTITY_OAUTH_* variables.
package oauth
