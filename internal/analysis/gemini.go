package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// maxImageBytes caps how much of a meal photo is read before sending it
// inline to Gemini.
const maxImageBytes = 10 << 20

var (
	errImageTooLarge  = errors.New("image exceeds 10 MiB")
	errBlockedAddress = errors.New("image host is not a public address")
)

// Gemini analyzes meals with Google's Gemini models. Unlike the OpenAI
// protocol, Gemini takes image bytes inline, so images are fetched first.
type Gemini struct {
	client  *genai.Client
	model   string
	fetcher *http.Client
}

// NewGemini returns a Gemini analyzer for model, or ErrNotConfigured when
// apiKey is empty. Image fetches use timeout and only reach public addresses.
func NewGemini(ctx context.Context, apiKey, model string, timeout time.Duration) (*Gemini, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model, fetcher: publicClient(timeout)}, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

// geminiSchema mirrors resultSchema in Gemini's schema type.
var geminiSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"meal_name":   {Type: genai.TypeString},
		"description": {Type: genai.TypeString},
		"calories":    {Type: genai.TypeNumber},
		"protein":     {Type: genai.TypeNumber},
		"carbs":       {Type: genai.TypeNumber},
		"fat":         {Type: genai.TypeNumber},
		"confidence":  {Type: genai.TypeString, Enum: []string{"high", "medium", "low"}},
		"ingredients": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"notes":       {Type: genai.TypeString},
	},
	Required: []string{"meal_name", "description", "calories", "protein", "carbs", "fat", "confidence", "ingredients", "notes"},
}

func (g *Gemini) AnalyzeImage(ctx context.Context, imageURL, notes string) (Result, error) {
	format, data, err := g.fetchImage(ctx, imageURL)
	if err != nil {
		return Result{}, err
	}
	return g.generate(ctx, imageSystemPrompt, genai.ImageData(format, data), genai.Text(imageUserPrompt(notes)))
}

func (g *Gemini) AnalyzeDescription(ctx context.Context, description string) (Result, error) {
	return g.generate(ctx, descriptionSystemPrompt, genai.Text(description))
}

func (g *Gemini) Refine(ctx context.Context, original Result, feedback string) (Result, error) {
	return g.generate(ctx, refineSystemPrompt, genai.Text(refineUserPrompt(original, feedback)))
}

func (g *Gemini) generate(ctx context.Context, system string, parts ...genai.Part) (Result, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(0)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = geminiSchema

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return Result{}, fmt.Errorf("generate content: %w", err)
	}
	content, err := responseText(resp)
	if err != nil {
		return Result{}, err
	}
	return parseResult(content)
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: no candidates in response", ErrInvalidResponse)
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: no text in response", ErrInvalidResponse)
	}
	return sb.String(), nil
}

// fetchImage downloads imageURL and returns its genai image format
// ("jpeg", "png", "webp") and bytes.
func (g *Gemini) fetchImage(ctx context.Context, imageURL string) (string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("create image request: %w", err)
	}
	resp, err := g.fetcher.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return "", nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return "", nil, errImageTooLarge
	}
	return imageFormat(resp.Header.Get("Content-Type")), data, nil
}

// imageFormat maps a Content-Type to the short format genai.ImageData wants.
// Unknown types are sent as jpeg.
func imageFormat(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch ct {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	}
	return "jpeg"
}

// publicClient returns an HTTP client whose connections may only go to
// public unicast addresses. The check runs on the resolved address, so it
// also covers redirects and hostnames pointing at internal ranges.
func publicClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second, Control: rejectInternal}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &http.Client{Timeout: timeout, Transport: transport}
}

func rejectInternal(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || !isPublicIP(ip) {
		return fmt.Errorf("%w: %s", errBlockedAddress, host)
	}
	return nil
}

var sharedAddressSpace = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

func isPublicIP(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast() ||
		sharedAddressSpace.Contains(ip))
}
