// Package prompt assembles oracle requests for script generation and
// refinement. The builder owns all provider-specific image shaping: merged
// vs separate slots and forced reformatting both happen here, so the
// pipeline never branches on provider capabilities.
package prompt

import (
	"fmt"
	"strings"

	"cad3dify/internal/exemplar"
	"cad3dify/internal/imaging"
	"cad3dify/internal/perception"
)

// OutputPlaceholder is the literal token scripts must write their STEP
// file to. The pipeline substitutes the real path before execution.
const OutputPlaceholder = "{output_filename}"

const systemInstruction = "You are an expert mechanical engineer who writes CadQuery scripts. " +
	"You read 2D CAD drawings and reproduce the part they describe as a parametric 3D solid."

// Builder constructs generation and refinement requests for one capability
// profile. It is stateless apart from the profile and exemplar corpus.
type Builder struct {
	profile perception.Profile
	corpus  exemplar.Corpus
}

// NewBuilder creates a Builder for the given profile using the built-in
// exemplar corpus.
func NewBuilder(profile perception.Profile) *Builder {
	return &Builder{profile: profile, corpus: exemplar.Default()}
}

// NewBuilderWithCorpus creates a Builder with a custom exemplar corpus.
func NewBuilderWithCorpus(profile perception.Profile, corpus exemplar.Corpus) *Builder {
	return &Builder{profile: profile, corpus: corpus}
}

// Generate builds the initial request from the reference drawing alone.
func (b *Builder) Generate(ref imaging.Image) (perception.Request, error) {
	images, err := b.shapeImages(ref)
	if err != nil {
		return perception.Request{}, err
	}

	var sb strings.Builder
	sb.WriteString("The attached image is a 2D CAD drawing of a mechanical part. ")
	sb.WriteString("Write a CadQuery (Python) script that builds the 3D solid it describes.\n\n")
	sb.WriteString("Requirements:\n")
	sb.WriteString("- Model the rough overall shape first, then add the detailed features.\n")
	sb.WriteString("- Export the finished solid as a STEP file with " +
		"`cadquery.exporters.export(result, \"" + OutputPlaceholder + "\")`. " +
		"Keep the output filename as the literal placeholder `" + OutputPlaceholder + "`.\n")
	sb.WriteString("- Reply with exactly one Python script inside a markdown code fence.\n\n")
	sb.WriteString("Here are examples of CadQuery scripts with explanations:\n\n")
	sb.WriteString(b.corpus.Render())

	return perception.Request{
		System: systemInstruction,
		User:   sb.String(),
		Images: images,
	}, nil
}

// Refine builds a refinement request carrying the reference drawing, the
// rendered view of the current model, and the current script.
func (b *Builder) Refine(ref, rendered imaging.Image, script string) (perception.Request, error) {
	images, err := b.shapeImages(ref, rendered)
	if err != nil {
		return perception.Request{}, err
	}

	var sb strings.Builder
	switch b.profile.ImageMode {
	case perception.ImageModeSeparate:
		sb.WriteString("The first attached image is the original 2D CAD drawing. ")
		sb.WriteString("The second is a rendering of the 3D model produced by the CadQuery script below.\n\n")
	case perception.ImageModeMerged:
		sb.WriteString("The attached image shows, side by side, the original 2D CAD drawing ")
		sb.WriteString("(left) and a rendering of the 3D model produced by the CadQuery script below (right).\n\n")
	}
	sb.WriteString("Compare the rendering against the drawing and revise the script so the ")
	sb.WriteString("model matches the drawing more closely. Fix wrong dimensions, missing ")
	sb.WriteString("features, and misplaced geometry.\n\n")
	sb.WriteString("Current script:\n```python\n")
	sb.WriteString(script)
	sb.WriteString("\n```\n\n")
	sb.WriteString("Requirements:\n")
	sb.WriteString("- Keep exporting with `cadquery.exporters.export(result, \"" +
		OutputPlaceholder + "\")` and the literal placeholder `" + OutputPlaceholder + "`.\n")
	sb.WriteString("- Reply with exactly one complete, revised Python script inside a markdown code fence.\n")

	return perception.Request{
		System: systemInstruction,
		User:   sb.String(),
		Images: images,
	}, nil
}

// shapeImages applies the profile's image mode and required format. With
// one input image the mode distinction collapses; with two, merged mode
// collapses them into a single slot.
func (b *Builder) shapeImages(imgs ...imaging.Image) ([]imaging.Image, error) {
	var shaped []imaging.Image

	switch b.profile.ImageMode {
	case perception.ImageModeSeparate:
		shaped = imgs
	case perception.ImageModeMerged:
		if len(imgs) <= 1 {
			shaped = imgs
		} else {
			merged, err := imgs[0].MergeHorizontal(imgs[1])
			if err != nil {
				return nil, fmt.Errorf("failed to merge images: %w", err)
			}
			shaped = []imaging.Image{merged}
		}
	default:
		return nil, fmt.Errorf("%w: image mode %q", perception.ErrUnsupportedProvider, b.profile.ImageMode)
	}

	if b.profile.RequiredFormat == "" {
		return shaped, nil
	}
	out := make([]imaging.Image, len(shaped))
	for i, img := range shaped {
		converted, err := img.Convert(b.profile.RequiredFormat)
		if err != nil {
			return nil, fmt.Errorf("failed to convert image to %s: %w", b.profile.RequiredFormat, err)
		}
		out[i] = converted
	}
	return out, nil
}
