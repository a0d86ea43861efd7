// Package language maps the language names and codes operators type into
// configuration onto the ISO 639-1 codes whisper accepts, and back into
// display names for status output.
package language
