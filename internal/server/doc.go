// Package server implements the server side of the binary chat protocol.
//
// A Server accepts connections, admits each one through an authorization
// check on its first frame, and then reads frames from the session,
// validating and relaying them to every other session through the Hub. The
// Registry is the only state shared between connections; it keeps usernames
// unique and is the source of broadcast targets.
//
// The implementation is organized into specialized files for configuration,
// the registry, the hub, session handling, transports and HTTP handlers.
package server
