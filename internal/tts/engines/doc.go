// Package engines contains the speech engine implementations.
// Currently supports Piper (offline) and an in-memory mock used for dry
// runs and tests. Each engine implements the SpeechEngine interface from
// the ttypes package.
package engines
