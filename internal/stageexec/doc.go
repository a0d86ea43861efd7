// Package stageexec adapts the external tool clients in internal/services to
// the stage.Executor contract and registers them by backend name.
//
// Built-in backends:
//
//	acquire     ytdlp     probe + download with yt-dlp, content key "<platform>:<id>"
//	extract     ffmpeg    first audio stream to wav (16 kHz mono) or mp3
//	transcribe  whisper   whisper.cpp CLI, transcript normalized to NFC
//	summarize   llm       OpenAI-compatible chat completion
//	summarize   command   local command (e.g. ollama) fed the prompt as its last argument
//
// Every executor writes its byproducts through artifacts.Store under the
// job's content key and reports their paths in stage.Output. Empty
// transcripts and empty summaries are validation errors.
package stageexec
