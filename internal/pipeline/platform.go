package pipeline

import (
	"context"
	"strings"
)

// Platform is the social platform a video link belongs to.
type Platform string

const (
	PlatformTikTok        Platform = "tiktok"
	PlatformInstagram     Platform = "instagram"
	PlatformFacebook      Platform = "facebook"
	PlatformYouTubeShorts Platform = "youtube-shorts"
	PlatformYouTube       Platform = "youtube"
	PlatformOther         Platform = "other"
)

// Detector classifies a video link into a Platform.
type Detector interface {
	Detect(ctx context.Context, link string) (Platform, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, link string) (Platform, error)

func (f DetectorFunc) Detect(ctx context.Context, link string) (Platform, error) {
	return f(ctx, link)
}

func normalizePlatform(s string) (Platform, bool) {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case PlatformTikTok:
		return PlatformTikTok, true
	case PlatformInstagram:
		return PlatformInstagram, true
	case PlatformFacebook:
		return PlatformFacebook, true
	case PlatformYouTubeShorts:
		return PlatformYouTubeShorts, true
	case PlatformYouTube:
		return PlatformYouTube, true
	case PlatformOther:
		return PlatformOther, true
	}
	return PlatformOther, false
}

const detectSystemPrompt = `You classify video URLs by platform. Answer with exactly one of:
tiktok, instagram, facebook, youtube-shorts, youtube, other.`

// LLMDetector asks the language model service to classify the link. Any
// transport or parse failure surfaces as an error; callers degrade to
// PlatformOther.
type LLMDetector struct {
	Client *LLMClient
}

// Detect implements Detector.
func (d *LLMDetector) Detect(ctx context.Context, link string) (Platform, error) {
	answer, err := d.Client.Complete(ctx, detectSystemPrompt, "URL: "+link)
	if err != nil {
		return PlatformOther, err
	}
	platform, _ := normalizePlatform(answer)
	return platform, nil
}
