// Package avatar handles profile picture uploads: decode, square-crop,
// resize, and store in S3. Preset avatars are just validated identifiers;
// only custom uploads touch storage.
package avatar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var (
	// ErrTooLarge is returned when the upload exceeds the configured limit.
	ErrTooLarge = errors.New("avatar: image too large")
	// ErrBadImage is returned when the payload is not a decodable image.
	ErrBadImage = errors.New("avatar: unsupported or corrupt image")
)

// Store persists processed avatars and yields a public key for them.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

// Processor validates, normalizes and stores avatar uploads.
type Processor struct {
	store      Store
	maxBytes   int64
	targetSize int
	jpegQual   int
}

// NewProcessor builds a Processor around the given store. targetSize is the
// output square edge in pixels.
func NewProcessor(store Store, maxBytes int64, targetSize int) *Processor {
	return &Processor{store: store, maxBytes: maxBytes, targetSize: targetSize, jpegQual: 85}
}

// Process decodes, crops to square, resizes and stores the image. It returns
// the storage key of the stored JPEG.
func (p *Processor) Process(ctx context.Context, userID string, data []byte) (string, error) {
	if int64(len(data)) > p.maxBytes {
		return "", ErrTooLarge
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadImage, err)
	}

	squared := centerCrop(img)
	resized := image.NewRGBA(image.Rect(0, 0, p.targetSize, p.targetSize))
	draw.CatmullRom.Scale(resized, resized.Bounds(), squared, squared.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: p.jpegQual}); err != nil {
		return "", fmt.Errorf("encode avatar: %w", err)
	}

	key := fmt.Sprintf("avatars/%s/%s.jpg", userID, uuid.NewString())
	if err := p.store.Put(ctx, key, buf.Bytes(), "image/jpeg"); err != nil {
		return "", fmt.Errorf("store avatar: %w", err)
	}
	return key, nil
}

// Remove deletes a previously stored custom avatar. Missing objects are not
// an error.
func (p *Processor) Remove(ctx context.Context, key string) error {
	if key == "" || !strings.HasPrefix(key, "avatars/") {
		return nil
	}
	return p.store.Delete(ctx, key)
}

// centerCrop returns the largest centered square region of img.
func centerCrop(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == h {
		return img
	}
	edge := w
	if h < w {
		edge = h
	}
	x0 := b.Min.X + (w-edge)/2
	y0 := b.Min.Y + (h-edge)/2
	rect := image.Rect(x0, y0, x0+edge, y0+edge)

	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if si, ok := img.(subImager); ok {
		return si.SubImage(rect)
	}
	out := image.NewRGBA(image.Rect(0, 0, edge, edge))
	draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
	return out
}

// S3Store is the production Store backed by a bucket.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store loads AWS config and returns a bucket-backed store.
func NewS3Store(ctx context.Context, region, bucket string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &S3Store{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put s3 object %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete s3 object %s: %w", key, err)
	}
	return nil
}
