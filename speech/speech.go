// Package speech transcribes voice questions with Google Cloud
// Speech-to-Text.
package speech

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"

	"github.com/becomeliminal/docqa/pkg/logger"
)

// Config holds transcription settings.
type Config struct {
	// LanguageCode is the primary language hint, BCP-47.
	LanguageCode string

	// AlternativeLanguageCodes lets the recognizer pick between languages,
	// which matters for a multilingual user base.
	AlternativeLanguageCodes []string

	// Timeout bounds a single transcription call.
	Timeout time.Duration
}

// DefaultConfig returns settings tuned for short spoken questions.
func DefaultConfig() Config {
	return Config{
		LanguageCode:             "en-US",
		AlternativeLanguageCodes: []string{"hi-IN", "ta-IN", "te-IN", "bn-IN"},
		Timeout:                  time.Minute,
	}
}

// Client wraps the GCP speech client behind the Transcriber surface the
// voice-ask flow needs.
type Client struct {
	client *speech.Client
	cfg    Config
	log    *logger.Logger
}

// New creates a Client. Credentials come from
// GOOGLE_APPLICATION_CREDENTIALS when set, otherwise application default
// credentials.
func New(ctx context.Context, cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = DefaultConfig().LanguageCode
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	var opts []option.ClientOption
	if creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")); creds != "" {
		opts = append(opts, option.WithCredentialsFile(creds))
	}

	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	return &Client{
		client: c,
		cfg:    cfg,
		log:    log.With("component", "speech"),
	}, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Transcribe converts the given audio bytes to text. Empty audio yields an
// empty transcript without calling the API.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   inferEncoding(mimeType),
			LanguageCode:               c.cfg.LanguageCode,
			AlternativeLanguageCodes:   c.cfg.AlternativeLanguageCodes,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}

	resp, err := c.client.Recognize(ctx, req)
	if err != nil {
		return "", fmt.Errorf("speech recognize: %w", err)
	}

	var full strings.Builder
	for _, result := range resp.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		transcript := strings.TrimSpace(result.Alternatives[0].Transcript)
		if transcript == "" {
			continue
		}
		if full.Len() > 0 {
			full.WriteString(" ")
		}
		full.WriteString(transcript)
	}
	return full.String(), nil
}

func inferEncoding(mimeType string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.Contains(m, "wav"):
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "flac"):
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mp3") || strings.Contains(m, "mpeg"):
		return speechpb.RecognitionConfig_MP3
	case strings.Contains(m, "ogg") || strings.Contains(m, "opus") || strings.Contains(m, "webm"):
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		// the API can often detect the encoding itself
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}
