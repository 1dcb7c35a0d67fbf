package convo

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/gif"

	"golang.org/x/image/webp"
)

// subsampleFrames decodes an animated attachment and returns at most
// maxFrames base64-encoded frames, evenly spaced across the original
// sequence (spec §4.1: "sub-sampled to at most N frames"). Only animated
// GIF is decoded frame-by-frame today; any other animated mime type is
// passed through as a single frame (its original bytes), since the corpus's
// only image-processing dependency (golang.org/x/image) decodes webp as a
// single static frame, not an animation sequence.
func subsampleFrames(a Attachment, maxFrames int) ([]string, error) {
	if maxFrames <= 0 {
		maxFrames = 1
	}

	if a.MimeType != "image/gif" {
		return []string{base64.StdEncoding.EncodeToString(a.Data)}, nil
	}

	g, err := gif.DecodeAll(bytes.NewReader(a.Data))
	if err != nil {
		return nil, fmt.Errorf("decoding animated gif: %w", err)
	}

	indices := sampleIndices(len(g.Image), maxFrames)
	frames := make([]string, 0, len(indices))
	for _, idx := range indices {
		var buf bytes.Buffer
		if err := gif.Encode(&buf, g.Image[idx], nil); err != nil {
			return nil, fmt.Errorf("encoding sub-sampled frame %d: %w", idx, err)
		}
		frames = append(frames, base64.StdEncoding.EncodeToString(buf.Bytes()))
	}
	return frames, nil
}

// sampleIndices picks up to max evenly-spaced indices from [0, total).
func sampleIndices(total, max int) []int {
	if total <= max {
		indices := make([]int, total)
		for i := range indices {
			indices[i] = i
		}
		return indices
	}
	indices := make([]int, max)
	for i := range indices {
		indices[i] = i * total / max
	}
	return indices
}

// normalizeStaticImage validates a static image attachment is decodable and
// returns it base64-encoded unchanged. WEBP is round-tripped through
// golang.org/x/image/webp's decoder purely to reject corrupt input early;
// every other mime type is passed through, since the contract only requires
// {mime, base64}, not re-encoding.
func normalizeStaticImage(a Attachment) (string, error) {
	if a.MimeType == "image/webp" {
		if _, err := webp.Decode(bytes.NewReader(a.Data)); err != nil {
			return "", fmt.Errorf("decoding webp attachment: %w", err)
		}
	}
	return base64.StdEncoding.EncodeToString(a.Data), nil
}
