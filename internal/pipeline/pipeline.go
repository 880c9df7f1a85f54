package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	"github.com/linklift/jobq/internal/queue"
)

// summaryLimit bounds the summary returned by the summarization stage.
const summaryLimit = 280

// tagLimit is the fixed size of the topical tag set.
const tagLimit = 5

var fallbackTags = []string{"video", "content", "social-media"}

// Product is one correlated product link.
type Product struct {
	URL        string     `json:"url"`
	Name       string     `json:"name"`
	Source     LinkSource `json:"source"`
	Confidence float64    `json:"confidence"`
}

// ProductAnalysis aggregates the commerce links found in a video.
type ProductAnalysis struct {
	TotalFound  int       `json:"totalFound"`
	Products    []Product `json:"products"`
	Summary     string    `json:"summary"`
	Tags        []string  `json:"tags"`
	AIProcessed bool      `json:"aiProcessed"`
}

// VideoInfo is the structured record produced for one analyzed link.
type VideoInfo struct {
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Platform        Platform        `json:"platform"`
	Thumbnail       string          `json:"thumbnail,omitempty"`
	Duration        string          `json:"duration,omitempty"`
	Category        string          `json:"category"`
	Tags            []string        `json:"tags"`
	Language        string          `json:"language"`
	Author          string          `json:"author,omitempty"`
	IsVideo         bool            `json:"isVideo"`
	ContentType     string          `json:"contentType"`
	ProductAnalysis ProductAnalysis `json:"productAnalysis"`
}

// Analyzer runs the multi-stage content analysis: platform detection,
// metadata fetch, link harvesting/classification and AI correlation. Stage
// failures degrade to fallback values; only job-level retry re-runs a stage.
type Analyzer struct {
	detector Detector
	youtube  *YouTubeClient
	pages    *PageFetcher
	llm      *LLMClient
	strictAI bool
	logger   log.Logger
}

// AnalyzerOption tunes an Analyzer at construction.
type AnalyzerOption func(*Analyzer)

// WithDetector replaces the platform detector.
func WithDetector(d Detector) AnalyzerOption {
	return func(a *Analyzer) { a.detector = d }
}

// WithYouTube enables the metadata fetch stage.
func WithYouTube(c *YouTubeClient) AnalyzerOption {
	return func(a *Analyzer) { a.youtube = c }
}

// WithPageFetcher replaces the raw page fetcher.
func WithPageFetcher(f *PageFetcher) AnalyzerOption {
	return func(a *Analyzer) { a.pages = f }
}

// WithLogger feeds the analyzer with a logger of choice.
func WithLogger(logger log.Logger) AnalyzerOption {
	return func(a *Analyzer) { a.logger = logger }
}

// StrictAI makes AI-call failures fail the job (retriable) instead of
// degrading to synthetic fallback content.
func StrictAI(strict bool) AnalyzerOption {
	return func(a *Analyzer) { a.strictAI = strict }
}

// NewAnalyzer builds an analyzer around the language model client. The LLM
// serves platform detection (unless overridden), correlation and
// summarization.
func NewAnalyzer(llm *LLMClient, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		llm:    llm,
		pages:  NewPageFetcher(0),
		logger: log.NewNopLogger(),
	}
	for _, f := range opts {
		f(a)
	}
	if a.detector == nil && llm != nil {
		a.detector = &LLMDetector{Client: llm}
	}
	return a
}

// Analyze runs all stages for one link. The error is non-nil only in strict
// mode; otherwise every stage failure degrades to a fallback value and the
// record is always produced.
func (a *Analyzer) Analyze(ctx context.Context, link string) (*VideoInfo, error) {
	platform := a.detectPlatform(ctx, link)

	meta := a.fetchMetadata(ctx, link, platform)

	var pageText string
	if a.pages != nil {
		text, err := a.pages.Fetch(ctx, link)
		if err != nil {
			_ = level.Debug(a.logger).Log("msg", "page fetch failed", "link", link, "err", err)
		}
		pageText = text
	}

	var description string
	if meta != nil {
		description = meta.Description
	}
	candidates := ClassifyProducts(HarvestLinks(description, pageText))

	products, aiOK, err := a.correlate(ctx, description, candidates)
	if err != nil && a.strictAI {
		return nil, errors.Wrap(err, "ai correlation")
	}

	info := &VideoInfo{
		Platform:    platform,
		IsVideo:     true,
		ContentType: "video",
		Language:    "unknown",
		Category:    "general",
		Tags:        []string{},
	}
	info.ProductAnalysis = ProductAnalysis{
		TotalFound:  len(products),
		Products:    products,
		AIProcessed: aiOK,
	}

	if meta != nil {
		info.Title = meta.Title
		info.Description = meta.Description
		info.Thumbnail = meta.Thumbnail
		info.Duration = meta.Duration
		info.Author = meta.Channel
		if meta.Language != "" {
			info.Language = meta.Language
		}
		if len(meta.Tags) > 0 {
			info.Tags = meta.Tags
		}
		summary, tags, category, err := a.summarize(ctx, meta)
		if err != nil {
			if a.strictAI {
				return nil, errors.Wrap(err, "ai summarization")
			}
			_ = level.Info(a.logger).Log("msg", "summarization failed, using fallback", "link", link, "err", err)
		}
		info.ProductAnalysis.Summary = summary
		info.ProductAnalysis.Tags = tags
		if category != "" {
			info.Category = category
		}
		return info, nil
	}

	gen, err := a.describeFromLink(ctx, link, platform)
	if err != nil {
		if a.strictAI {
			return nil, errors.Wrap(err, "ai description")
		}
		_ = level.Info(a.logger).Log("msg", "description call failed, using synthetic record", "link", link, "err", err)
	}
	info.Title = gen.Title
	info.Description = gen.Description
	info.Category = gen.Category
	if len(gen.Tags) > 0 {
		info.Tags = gen.Tags
	}
	if gen.ContentType != "" {
		info.ContentType = gen.ContentType
	}
	info.ProductAnalysis.Summary = truncate(gen.Description, summaryLimit)
	info.ProductAnalysis.Tags = gen.Tags
	return info, nil
}

// detectPlatform degrades to PlatformOther on classifier failure.
func (a *Analyzer) detectPlatform(ctx context.Context, link string) Platform {
	if a.detector == nil {
		return PlatformOther
	}
	platform, err := a.detector.Detect(ctx, link)
	if err != nil {
		_ = level.Info(a.logger).Log("msg", "platform detection failed, falling back to other", "link", link, "err", err)
		return PlatformOther
	}
	return platform
}

// fetchMetadata runs only for YouTube links with an extractable id. Both a
// missed extraction and an API failure yield nil metadata.
func (a *Analyzer) fetchMetadata(ctx context.Context, link string, platform Platform) *VideoMetadata {
	if a.youtube == nil {
		return nil
	}
	if platform != PlatformYouTube && platform != PlatformYouTubeShorts {
		return nil
	}
	id, ok := ExtractYouTubeID(link)
	if !ok {
		_ = level.Debug(a.logger).Log("msg", "no video id in link, skipping metadata", "link", link)
		return nil
	}
	meta, err := a.youtube.Fetch(ctx, id)
	if err != nil {
		_ = level.Info(a.logger).Log("msg", "metadata fetch failed", "video", id, "err", err)
		return nil
	}
	return meta
}

const correlateSystemPrompt = `You match product links to the products mentioned in a video description.
For every candidate link, use its surrounding text to produce a short human-readable product name.
Answer with a JSON array only: [{"id": <candidate id>, "name": "<product name>"}].
Echo the id of each candidate exactly as given.`

// correlate names each product link through the language model, falling back
// to names derived from the URL path. aiOK reports whether the model answer
// was used.
func (a *Analyzer) correlate(ctx context.Context, description string, candidates []Candidate) ([]Product, bool, error) {
	products := make([]Product, len(candidates))
	for i, c := range candidates {
		products[i] = Product{
			URL:        c.URL,
			Name:       FallbackProductName(c.URL),
			Source:     c.Source,
			Confidence: c.Confidence,
		}
	}
	if len(candidates) == 0 || a.llm == nil {
		return products, false, nil
	}

	var sb strings.Builder
	sb.WriteString("Description:\n")
	sb.WriteString(description)
	sb.WriteString("\n\nCandidate links:\n")
	for i, c := range candidates {
		fmt.Fprintf(&sb, "%d: %s (found in %s)\n", i+1, c.URL, c.Source)
	}

	answer, err := a.llm.Complete(ctx, correlateSystemPrompt, sb.String())
	if err != nil {
		return products, false, err
	}
	var named []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(stripFences(answer)), &named); err != nil {
		return products, false, errors.Wrap(err, "parse correlation answer")
	}
	for _, n := range named {
		if n.ID < 1 || n.ID > len(products) || strings.TrimSpace(n.Name) == "" {
			continue
		}
		products[n.ID-1].Name = strings.TrimSpace(n.Name)
	}
	return products, true, nil
}

const summarizeSystemPrompt = `You summarize video metadata.
Answer with JSON only: {"summary": "<at most two sentences>", "tags": ["<up to 5 topical tags>"], "category": "<one-word category>"}.`

// summarize produces the short summary and topical tag set from fetched
// metadata. Fallbacks are generic but deterministic.
func (a *Analyzer) summarize(ctx context.Context, meta *VideoMetadata) (string, []string, string, error) {
	fallbackSummary := truncate(meta.Description, summaryLimit)
	if fallbackSummary == "" {
		fallbackSummary = "Video content from " + meta.Channel
	}
	if a.llm == nil {
		return fallbackSummary, fallbackTags, "", nil
	}

	user := fmt.Sprintf("Title: %s\nChannel: %s\nTags: %s\nDescription:\n%s",
		meta.Title, meta.Channel, strings.Join(meta.Tags, ", "), truncate(meta.Description, 2000))
	answer, err := a.llm.Complete(ctx, summarizeSystemPrompt, user)
	if err != nil {
		return fallbackSummary, fallbackTags, "", err
	}
	var parsed struct {
		Summary  string   `json:"summary"`
		Tags     []string `json:"tags"`
		Category string   `json:"category"`
	}
	if err := json.Unmarshal([]byte(stripFences(answer)), &parsed); err != nil {
		return fallbackSummary, fallbackTags, "", errors.Wrap(err, "parse summary answer")
	}
	if parsed.Summary == "" {
		parsed.Summary = fallbackSummary
	}
	if len(parsed.Tags) == 0 {
		parsed.Tags = fallbackTags
	}
	if len(parsed.Tags) > tagLimit {
		parsed.Tags = parsed.Tags[:tagLimit]
	}
	return truncate(parsed.Summary, summaryLimit), parsed.Tags, parsed.Category, nil
}

// generated is the combined answer used when no platform metadata exists.
type generated struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	ContentType string   `json:"contentType"`
}

const describeSystemPrompt = `You describe a social media video knowing only its URL and platform.
Answer with JSON only: {"title": "...", "description": "...", "category": "<one word>", "tags": ["<up to 5>"], "contentType": "video|reel|short|other"}.`

// describeFromLink is the single combined call used when metadata was
// unavailable. On failure a fully synthetic record is returned so the job
// never fails purely due to an AI error.
func (a *Analyzer) describeFromLink(ctx context.Context, link string, platform Platform) (generated, error) {
	synthetic := generated{
		Title:       fmt.Sprintf("Video from %s", platform),
		Description: fmt.Sprintf("Content shared at %s", link),
		Category:    "general",
		Tags:        fallbackTags,
		ContentType: "video",
	}
	if a.llm == nil {
		return synthetic, nil
	}
	answer, err := a.llm.Complete(ctx, describeSystemPrompt, fmt.Sprintf("URL: %s\nPlatform: %s", link, platform))
	if err != nil {
		return synthetic, err
	}
	var parsed generated
	if err := json.Unmarshal([]byte(stripFences(answer)), &parsed); err != nil {
		return synthetic, errors.Wrap(err, "parse description answer")
	}
	if parsed.Title == "" {
		parsed.Title = synthetic.Title
	}
	if parsed.Category == "" {
		parsed.Category = synthetic.Category
	}
	if parsed.ContentType == "" {
		parsed.ContentType = synthetic.ContentType
	}
	if len(parsed.Tags) > tagLimit {
		parsed.Tags = parsed.Tags[:tagLimit]
	}
	return parsed, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}

// jobResult is the record stored as the job's result.
type jobResult struct {
	Success     bool       `json:"success"`
	ProcessedAt time.Time  `json:"processedAt"`
	UserID      int64      `json:"userId"`
	Type        string     `json:"type"`
	VideoInfo   *VideoInfo `json:"videoInfo"`
}

// Handler adapts the analyzer to the worker pool. Missing required service
// configuration aborts the job immediately; anything else is retriable.
func (a *Analyzer) Handler() queue.Handler {
	return func(ctx context.Context, job *queue.Job) ([]byte, error) {
		payload, ok := job.Payload.(queue.VideoPayload)
		if !ok {
			return nil, queue.Fatal(errors.Errorf("video handler got %T payload", job.Payload))
		}
		if a.llm == nil || a.llm.APIKey == "" {
			return nil, queue.Fatal(errors.New("language model service not configured"))
		}
		info, err := a.Analyze(ctx, payload.VideoLink)
		if err != nil {
			return nil, queue.Transient(err)
		}
		return json.Marshal(jobResult{
			Success:     true,
			ProcessedAt: time.Now(),
			UserID:      payload.UserID,
			Type:        payload.Type,
			VideoInfo:   info,
		})
	}
}
