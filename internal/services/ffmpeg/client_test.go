package ffmpeg_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"recap/internal/services"
	"recap/internal/services/ffmpeg"
	"recap/internal/testsupport"
)

func fakeTools(t *testing.T, probeJSON string) *testsupport.FakeRunner {
	t.Helper()
	return &testsupport.FakeRunner{Handler: func(_ context.Context, binary string, args []string) (services.CommandResult, error) {
		switch binary {
		case "ffprobe":
			return services.CommandResult{Stdout: probeJSON}, nil
		case "ffmpeg":
			testsupport.WriteFile(t, args[len(args)-1], "RIFF....WAVE")
			return services.CommandResult{}, nil
		default:
			t.Fatalf("unexpected binary %s", binary)
			return services.CommandResult{}, nil
		}
	}}
}

func TestExtractAudioWritesWAV(t *testing.T) {
	runner := fakeTools(t, `{"streams":[{"index":0,"codec_type":"video"},{"index":1,"codec_type":"audio"}],"format":{"duration":"12.5"}}`)
	client := ffmpeg.New(ffmpeg.Config{}, runner)
	dst := filepath.Join(t.TempDir(), "audio"+client.Extension())

	if err := client.ExtractAudio(context.Background(), "/media/in.mp4", dst); err != nil {
		t.Fatalf("ExtractAudio failed: %v", err)
	}
	calls := runner.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected probe and extract, got %d calls", len(calls))
	}
	args := calls[1].Args
	if testsupport.ArgValue(args, "-ar") != "16000" || testsupport.ArgValue(args, "-c:a") != "pcm_s16le" {
		t.Fatalf("unexpected ffmpeg args %v", args)
	}
	if testsupport.ArgValue(args, "-i") != "/media/in.mp4" {
		t.Fatalf("unexpected input %v", args)
	}
}

func TestExtractAudioMP3(t *testing.T) {
	runner := fakeTools(t, `{"streams":[{"index":0,"codec_type":"audio"}]}`)
	client := ffmpeg.New(ffmpeg.Config{Format: "MP3"}, runner)
	if client.Extension() != ".mp3" {
		t.Fatalf("unexpected extension %s", client.Extension())
	}
	dst := filepath.Join(t.TempDir(), "audio.mp3")
	if err := client.ExtractAudio(context.Background(), "in.webm", dst); err != nil {
		t.Fatalf("ExtractAudio failed: %v", err)
	}
	if got := testsupport.ArgValue(runner.Calls()[1].Args, "-f"); got != "mp3" {
		t.Fatalf("expected mp3 muxer, got %q", got)
	}
}

func TestExtractAudioWithoutAudioStreamIsValidation(t *testing.T) {
	runner := fakeTools(t, `{"streams":[{"index":0,"codec_type":"video"}]}`)
	err := ffmpeg.New(ffmpeg.Config{}, runner).ExtractAudio(context.Background(), "in.mp4", filepath.Join(t.TempDir(), "a.wav"))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(runner.Calls()) != 1 {
		t.Fatal("ffmpeg must not run when there is no audio")
	}
}

func TestProbeFailureIsExternalTool(t *testing.T) {
	runner := &testsupport.FakeRunner{Handler: func(context.Context, string, []string) (services.CommandResult, error) {
		return services.CommandResult{ExitCode: 1}, &services.CommandError{Binary: "ffprobe", ExitCode: 1, Stderr: "moov atom not found"}
	}}
	_, err := ffmpeg.New(ffmpeg.Config{}, runner).Probe(context.Background(), "broken.mp4")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestValidateFormat(t *testing.T) {
	if ffmpeg.ValidateFormat("wav") != nil || ffmpeg.ValidateFormat("mp3") != nil {
		t.Fatal("expected supported formats")
	}
	if ffmpeg.ValidateFormat("flac") == nil {
		t.Fatal("expected flac to be rejected")
	}
}
