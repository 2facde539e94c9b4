package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"atelier/application/ports"
	pkgerrors "atelier/pkg/errors"
)

// Error codes the images API uses for content-policy refusals.
var safetyCodes = map[string]struct{}{
	"moderation_blocked":       {},
	"content_policy_violation": {},
	"content_filter":           {},
	"safety_violation":         {},
}

// ImageGenerator renders prompts with the images API. With references it
// uses the edit endpoint so the references steer the result.
type ImageGenerator struct {
	client openaisdk.Client
	model  string
	guard  *Guard
	logger *zap.Logger
}

func NewImageGenerator(model string, guard *Guard, logger *zap.Logger, opts ...option.RequestOption) *ImageGenerator {
	if model == "" {
		model = string(openaisdk.ImageModelGPTImage1)
	}
	return &ImageGenerator{
		client: openaisdk.NewClient(opts...),
		model:  model,
		guard:  guard,
		logger: logger,
	}
}

func (g *ImageGenerator) GenerateImage(ctx context.Context, req ports.ImageRequest) (ports.GeneratedImage, error) {
	refs, err := decodeReferences(req.References)
	if err != nil {
		return ports.GeneratedImage{}, pkgerrors.NewUpstreamError("images", err)
	}

	var image ports.GeneratedImage
	err = g.guard.Do(ctx, "image", func(ctx context.Context) error {
		var (
			resp *openaisdk.ImagesResponse
			err  error
		)
		if len(refs) == 0 {
			resp, err = g.client.Images.Generate(ctx, openaisdk.ImageGenerateParams{
				Prompt:       req.Prompt,
				Model:        openaisdk.ImageModel(g.model),
				N:            openaisdk.Int(1),
				OutputFormat: openaisdk.ImageGenerateParamsOutputFormatPNG,
			})
		} else {
			readers := make([]io.Reader, 0, len(refs))
			for i, r := range refs {
				contentType := http.DetectContentType(r)
				name := fmt.Sprintf("reference-%d.%s", i, strings.TrimPrefix(contentType, "image/"))
				readers = append(readers, openaisdk.File(bytes.NewReader(r), name, contentType))
			}
			resp, err = g.client.Images.Edit(ctx, openaisdk.ImageEditParams{
				Image:        openaisdk.ImageEditParamsImageUnion{OfFileArray: readers},
				Prompt:       req.Prompt,
				Model:        openaisdk.ImageModel(g.model),
				N:            openaisdk.Int(1),
				OutputFormat: openaisdk.ImageEditParamsOutputFormatPNG,
			})
		}
		if err != nil {
			return classifyImageError(err)
		}
		image, err = decodeImage(resp)
		return err
	})
	if err != nil {
		g.logger.Warn("Image generation failed",
			zap.String("painting_id", req.PaintingID.String()),
			zap.Int("references", len(refs)),
			zap.Bool("safety", pkgerrors.IsSafety(err)),
			zap.Error(err),
		)
		return ports.GeneratedImage{}, err
	}
	return image, nil
}

// classifyImageError separates content-policy refusals from other failures.
func classifyImageError(err error) error {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		if isSafetyCode(apiErr.Code) || isSafetyCode(apiErr.Type) ||
			strings.Contains(strings.ToLower(apiErr.Message), "safety system") {
			return pkgerrors.NewSafetyRejection(apiErr.Message, err)
		}
	}
	return pkgerrors.NewUpstreamError("images", err)
}

func isSafetyCode(code string) bool {
	_, ok := safetyCodes[strings.ToLower(code)]
	return ok
}

func decodeImage(resp *openaisdk.ImagesResponse) (ports.GeneratedImage, error) {
	if resp == nil || len(resp.Data) == 0 {
		return ports.GeneratedImage{}, pkgerrors.NewUpstreamError("images", errors.New("response contained no image"))
	}
	img := resp.Data[0]
	if img.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(img.B64JSON)
		if err != nil {
			return ports.GeneratedImage{}, pkgerrors.NewUpstreamError("images", fmt.Errorf("decode image: %w", err))
		}
		return ports.GeneratedImage{Data: data, Extension: "png"}, nil
	}
	if img.URL != "" {
		return ports.GeneratedImage{URL: img.URL}, nil
	}
	return ports.GeneratedImage{}, pkgerrors.NewUpstreamError("images", errors.New("image had neither data nor url"))
}

// decodeReferences accepts data URLs or bare base64.
func decodeReferences(refs []ports.ReferenceImage) ([][]byte, error) {
	out := make([][]byte, 0, len(refs))
	for _, r := range refs {
		raw := r.ImageData
		if i := strings.Index(raw, ","); strings.HasPrefix(raw, "data:") && i >= 0 {
			raw = raw[i+1:]
		}
		data, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("reference %s is not valid base64: %w", r.ID, err)
		}
		out = append(out, data)
	}
	return out, nil
}

var _ ports.ImageGenerator = (*ImageGenerator)(nil)
