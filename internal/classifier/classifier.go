// Package classifier is the external comment-analysis HTTP client
// (spec.md §6.3). The classifier service itself is out of scope — this
// package only sends the analyze request and parses the four attribute
// scores out of the response.
//
// Grounded on the same resolver_http.go pattern internal/llm uses: bare
// *http.Client, context timeout, status-code branching, body-size limit.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	core "github.com/bridgelab/reportpipeline/internal/core/service"
	"github.com/bridgelab/reportpipeline/pkg/logger"
)

const (
	endpointTemplate = "https://commentanalyzer.googleapis.com/v1alpha1/comments:analyze?key=%s"
	maxTextLength    = 20480
	defaultBodyLimit = 1 << 20
)

// Attributes are the four scored dimensions of spec.md §4.G.
type Attributes struct {
	PersonalStory float64
	Reasoning     float64
	Curiosity     float64
	Toxicity      float64
}

type analyzeRequest struct {
	Comment             commentPayload     `json:"comment"`
	RequestedAttributes map[string]struct{} `json:"requestedAttributes"`
	DoNotStore          bool               `json:"doNotStore"`
	Languages           []string           `json:"languages"`
}

type commentPayload struct {
	Text string `json:"text"`
}

type summaryScore struct {
	Value float64 `json:"value"`
}

type attributeScore struct {
	SummaryScore summaryScore `json:"summaryScore"`
}

type analyzeResponse struct {
	AttributeScores map[string]attributeScore `json:"attributeScores"`
}

const (
	attrPersonalStory = "PERSONAL_STORY_EXPERIMENTAL"
	attrReasoning     = "REASONING_EXPERIMENTAL"
	attrCuriosity     = "CURIOSITY_EXPERIMENTAL"
	attrToxicity      = "TOXICITY"
)

// Client is the production classifier HTTP client.
type Client struct {
	http     *http.Client
	apiKey   string
	endpoint string
	log      *logger.Logger
	tracer   core.Tracer
}

// NewClient builds a Client against the real Perspective API endpoint.
// httpClient may be nil for a sensible default.
func NewClient(httpClient *http.Client, apiKey string, log *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("classifier-client")
	}
	return &Client{
		http:     httpClient,
		apiKey:   apiKey,
		endpoint: fmt.Sprintf(endpointTemplate, apiKey),
		log:      log,
		tracer:   core.NoopTracer,
	}
}

// NewClientWithEndpoint builds a Client against an explicit endpoint,
// bypassing the apiKey-templated default — used by tests and by
// deployments pointed at a regional or mock classifier.
func NewClientWithEndpoint(httpClient *http.Client, endpoint string, log *logger.Logger) *Client {
	c := NewClient(httpClient, "", log)
	c.endpoint = endpoint
	return c
}

// WithTracer configures an optional tracer for classifier calls.
func (c *Client) WithTracer(tracer core.Tracer) {
	if tracer == nil {
		c.tracer = core.NoopTracer
		return
	}
	c.tracer = tracer
}

// Sanitize strips control characters (except \n and \t) and truncates to
// the classifier's accepted length (spec.md §4.G step 4).
func Sanitize(text string) string {
	var b strings.Builder
	for _, r := range text {
		if r == '\n' || r == '\t' || r >= 0x20 {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > maxTextLength {
		out = out[:maxTextLength]
	}
	return out
}

// Analyze sends one comment for analysis and returns its four attribute
// scores, defaulting any missing score to 0.
func (c *Client) Analyze(ctx context.Context, text string) (Attributes, error) {
	ctx, finishSpan := c.tracer.StartSpan(ctx, "classifier.analyze", nil)
	var spanErr error
	defer func() { finishSpan(spanErr) }()

	sanitized := Sanitize(text)
	body, err := json.Marshal(analyzeRequest{
		Comment: commentPayload{Text: sanitized},
		RequestedAttributes: map[string]struct{}{
			attrPersonalStory: {},
			attrReasoning:     {},
			attrCuriosity:     {},
			attrToxicity:      {},
		},
		DoNotStore: true,
		Languages:  []string{"en"},
	})
	if err != nil {
		spanErr = err
		return Attributes{}, fmt.Errorf("encode classifier request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		spanErr = err
		return Attributes{}, fmt.Errorf("build classifier request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		spanErr = err
		return Attributes{}, fmt.Errorf("execute classifier request: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, defaultBodyLimit)
	raw, err := io.ReadAll(limited)
	if err != nil {
		spanErr = err
		return Attributes{}, fmt.Errorf("read classifier response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("classifier returned status %d", resp.StatusCode)
		spanErr = err
		return Attributes{}, err
	}

	var parsed analyzeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		spanErr = err
		return Attributes{}, fmt.Errorf("decode classifier response: %w", err)
	}

	return Attributes{
		PersonalStory: scoreOf(parsed, attrPersonalStory),
		Reasoning:     scoreOf(parsed, attrReasoning),
		Curiosity:     scoreOf(parsed, attrCuriosity),
		Toxicity:      scoreOf(parsed, attrToxicity),
	}, nil
}

func scoreOf(resp analyzeResponse, attr string) float64 {
	return resp.AttributeScores[attr].SummaryScore.Value
}
