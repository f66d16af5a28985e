// internal/browser/cdp/page_test.go
package cdp

import (
	"testing"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/stretchr/testify/assert"
)

func TestScreenshotFormat(t *testing.T) {
	tests := []struct {
		path string
		want cdppage.CaptureScreenshotFormat
	}{
		{"/tmp/shot.png", cdppage.CaptureScreenshotFormatPng},
		{"/tmp/shot.jpg", cdppage.CaptureScreenshotFormatJpeg},
		{"/tmp/shot.JPEG", cdppage.CaptureScreenshotFormatJpeg},
		{"/tmp/shot.webp", cdppage.CaptureScreenshotFormatWebp},
		{"/tmp/shot.WebP", cdppage.CaptureScreenshotFormatWebp},
		{"/tmp/shot", cdppage.CaptureScreenshotFormatPng},
		{"/tmp/shot.gif", cdppage.CaptureScreenshotFormatPng},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, screenshotFormat(tt.path))
		})
	}
}
