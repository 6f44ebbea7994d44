package generate

import (
	"fmt"
	"math"
	"strings"

	"github.com/OFFIS-RIT/testcase-agent/internal/util"
	"github.com/OFFIS-RIT/testcase-agent/pkg/document"
	"github.com/OFFIS-RIT/testcase-agent/pkg/vision"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	EmbedAuto     = "auto"
	EmbedNative   = "native"
	EmbedMarkdown = "markdown"

	DefaultBatchConcurrency = 2
	DefaultMaxOutputTokens  = 8192
)

// Config is the per-request generation configuration. Zero fields are filled
// from the server defaults by WithDefaults.
type Config struct {
	APIKey                    string   `json:"api_key,omitempty"`
	BaseURL                   string   `json:"base_url,omitempty"`
	Provider                  string   `json:"provider,omitempty"`
	TextModel                 string   `json:"text_model,omitempty"`
	VisionModel               string   `json:"vision_model,omitempty"`
	DisableVision             *bool    `json:"disable_vision,omitempty"`
	MaxImagesPerBatch         int      `json:"max_images_per_batch,omitempty"`
	ImageMaxSize              int      `json:"image_max_size,omitempty"`
	ImageQuality              int      `json:"image_quality,omitempty"`
	MaxSectionChars           int      `json:"max_section_chars,omitempty"`
	BatchInferenceConcurrency int      `json:"batch_inference_concurrency,omitempty"`
	ImageDownloadConcurrency  int      `json:"image_download_concurrency,omitempty"`
	ImageEmbedMode            string   `json:"image_embed_mode,omitempty"`
	MaxOutputTokens           int      `json:"max_output_tokens,omitempty"`
	Temperature               *float64 `json:"temperature,omitempty"`
}

// Defaults returns the built-in defaults. Vision is off unless enabled.
func Defaults() Config {
	disabled := true
	return Config{
		Provider:                  ProviderOpenAI,
		DisableVision:             &disabled,
		MaxImagesPerBatch:         document.DefaultImageCap,
		ImageMaxSize:              vision.DefaultMaxSize,
		ImageQuality:              vision.DefaultQuality,
		MaxSectionChars:           document.DefaultCharCap,
		BatchInferenceConcurrency: DefaultBatchConcurrency,
		ImageDownloadConcurrency:  vision.DefaultConcurrency,
		ImageEmbedMode:            EmbedAuto,
		MaxOutputTokens:           DefaultMaxOutputTokens,
	}
}

// DefaultsFromEnv overlays environment settings on Defaults.
func DefaultsFromEnv() Config {
	d := Defaults()
	disabled := util.GetEnvBool("DISABLE_VISION", *d.DisableVision)
	c := Config{
		APIKey:                    util.GetEnv("OPENAI_API_KEY"),
		BaseURL:                   util.GetEnv("OPENAI_BASE_URL"),
		Provider:                  strings.ToLower(util.GetEnvString("AI_ADAPTER", d.Provider)),
		TextModel:                 util.GetEnv("TEXT_MODEL"),
		VisionModel:               util.GetEnv("VISION_MODEL"),
		DisableVision:             &disabled,
		MaxImagesPerBatch:         util.GetEnvInt("MAX_IMAGES_PER_BATCH", d.MaxImagesPerBatch),
		ImageMaxSize:              util.GetEnvInt("IMAGE_MAX_SIZE", d.ImageMaxSize),
		ImageQuality:              util.GetEnvInt("IMAGE_QUALITY", d.ImageQuality),
		MaxSectionChars:           util.GetEnvInt("MAX_SECTION_CHARS", d.MaxSectionChars),
		BatchInferenceConcurrency: util.GetEnvInt("BATCH_INFERENCE_CONCURRENCY", d.BatchInferenceConcurrency),
		ImageDownloadConcurrency:  util.GetEnvInt("IMAGE_DOWNLOAD_CONCURRENCY", d.ImageDownloadConcurrency),
		ImageEmbedMode:            strings.ToLower(util.GetEnvString("IMAGE_EMBED_MODE", d.ImageEmbedMode)),
		MaxOutputTokens:           util.GetEnvInt("MAX_OUTPUT_TOKENS", d.MaxOutputTokens),
	}
	if t := util.GetEnvFloat("MODEL_TEMPERATURE", math.NaN()); !math.IsNaN(t) {
		c.Temperature = &t
	}
	return c.WithDefaults(d)
}

// WithDefaults fills every unset field of c from d.
func (c Config) WithDefaults(d Config) Config {
	if c.APIKey == "" {
		c.APIKey = d.APIKey
	}
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.Provider == "" {
		c.Provider = d.Provider
	}
	if c.TextModel == "" {
		c.TextModel = d.TextModel
	}
	if c.VisionModel == "" {
		c.VisionModel = d.VisionModel
	}
	if c.DisableVision == nil {
		c.DisableVision = d.DisableVision
	}
	if c.MaxImagesPerBatch <= 0 {
		c.MaxImagesPerBatch = d.MaxImagesPerBatch
	}
	if c.ImageMaxSize <= 0 {
		c.ImageMaxSize = d.ImageMaxSize
	}
	if c.ImageQuality <= 0 {
		c.ImageQuality = d.ImageQuality
	}
	if c.MaxSectionChars <= 0 {
		c.MaxSectionChars = d.MaxSectionChars
	}
	if c.BatchInferenceConcurrency <= 0 {
		c.BatchInferenceConcurrency = d.BatchInferenceConcurrency
	}
	if c.ImageDownloadConcurrency <= 0 {
		c.ImageDownloadConcurrency = d.ImageDownloadConcurrency
	}
	if c.ImageEmbedMode == "" {
		c.ImageEmbedMode = d.ImageEmbedMode
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = d.MaxOutputTokens
	}
	if c.Temperature == nil {
		c.Temperature = d.Temperature
	}
	return c
}

// VisionEnabled reports whether image-capable generation may be used.
func (c Config) VisionEnabled() bool {
	return c.DisableVision != nil && !*c.DisableVision
}

// Validate rejects a configuration that cannot run, before any work starts.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI:
		if strings.TrimSpace(c.APIKey) == "" {
			return fmt.Errorf("%w: api key is required", ErrConfiguration)
		}
	case ProviderOllama:
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrConfiguration, c.Provider)
	}
	if strings.TrimSpace(c.TextModel) == "" {
		return fmt.Errorf("%w: text model is required", ErrConfiguration)
	}
	if c.VisionEnabled() && strings.TrimSpace(c.VisionModel) == "" {
		return fmt.Errorf("%w: vision model is required when vision is enabled", ErrConfiguration)
	}
	switch c.ImageEmbedMode {
	case EmbedAuto, EmbedNative, EmbedMarkdown:
	default:
		return fmt.Errorf("%w: unknown image embed mode %q", ErrConfiguration, c.ImageEmbedMode)
	}
	return nil
}

// EmbedMode resolves auto to the convention the endpoint supports.
func (c Config) EmbedMode() string {
	if c.ImageEmbedMode != EmbedAuto && c.ImageEmbedMode != "" {
		return c.ImageEmbedMode
	}
	if strings.Contains(strings.ToLower(c.BaseURL), "deepseek") {
		return EmbedMarkdown
	}
	return EmbedNative
}

// fingerprintFields lists the settings that change the output. Credentials
// are left out.
func (c Config) fingerprintFields() map[string]any {
	f := map[string]any{
		"base_url":                    c.BaseURL,
		"provider":                    c.Provider,
		"text_model":                  c.TextModel,
		"vision_model":                c.VisionModel,
		"disable_vision":              !c.VisionEnabled(),
		"max_images_per_batch":        c.MaxImagesPerBatch,
		"image_max_size":              c.ImageMaxSize,
		"image_quality":               c.ImageQuality,
		"max_section_chars":           c.MaxSectionChars,
		"image_embed_mode":            c.EmbedMode(),
		"max_output_tokens":           c.MaxOutputTokens,
	}
	if c.Temperature != nil {
		f["temperature"] = *c.Temperature
	}
	return f
}
