package provider

import (
	"context"
	"time"

	"mayagen/internal/domain/model"
	"mayagen/internal/domain/ports/adapter"
)

var _ adapter.ImageProvider = (*MockAdapter)(nil)

// onePixelPNG is a valid 1x1 transparent PNG, enough for end-to-end runs
// without any real backend.
var onePixelPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4,
	0x89, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x44, 0x41,
	0x54, 0x78, 0x9c, 0x62, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00,
	0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae,
	0x42, 0x60, 0x82,
}

// MockAdapter fakes a render with a short delay. Used in development and
// tests.
type MockAdapter struct {
	delay time.Duration
}

func NewMockAdapter(delay time.Duration) *MockAdapter {
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	return &MockAdapter{delay: delay}
}

func (m *MockAdapter) Name() string { return "mock" }

func (m *MockAdapter) Render(ctx context.Context, _ *model.Job) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(m.delay):
	}
	out := make([]byte, len(onePixelPNG))
	copy(out, onePixelPNG)
	return out, nil
}
