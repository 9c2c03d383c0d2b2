// Package audio plays synthesized PCM through the system audio device
// using the oto/v3 library. Playback is blocking and cancellable, which is
// what a speech engine needs to report utterance completion.
package audio
