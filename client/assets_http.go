package client

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/remeh/sizedwaitgroup"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// DefaultAssetParallel 同时进行的下载数
const DefaultAssetParallel = 4

// maxAssetBytes 单张图片上限
const maxAssetBytes = 16 << 20

// DecodedImage 已解码的图片
type DecodedImage struct {
	URL    string
	Format string
	Img    image.Image
}

func (d *DecodedImage) Size() (w, h int) {
	b := d.Img.Bounds()
	return b.Dx(), b.Dy()
}

// HTTPAssetLoader 通过 HTTP 下载并解码图片，限制并发数
type HTTPAssetLoader struct {
	base   *url.URL
	client *http.Client
	ctx    context.Context
	swg    sizedwaitgroup.SizedWaitGroup
}

// NewHTTPAssetLoader baseURL 用于解析相对地址；ctx 取消后未开始的下载直接失败
func NewHTTPAssetLoader(ctx context.Context, baseURL string, maxParallel int, client *http.Client) (*HTTPAssetLoader, error) {
	if maxParallel <= 0 {
		maxParallel = DefaultAssetParallel
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	var base *url.URL
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("asset base url %q: %w", baseURL, err)
		}
		base = u
	}
	return &HTTPAssetLoader{base: base, client: client, ctx: ctx, swg: sizedwaitgroup.New(maxParallel)}, nil
}

// LoadImage 异步下载；done 在下载协程中回调
func (l *HTTPAssetLoader) LoadImage(ref string, done func(Image, error)) {
	go func() {
		l.swg.Add()
		defer l.swg.Done()
		img, err := l.fetch(ref)
		if err != nil {
			done(nil, err)
			return
		}
		done(img, nil)
	}()
}

// Wait 等待所有下载结束
func (l *HTTPAssetLoader) Wait() { l.swg.Wait() }

func (l *HTTPAssetLoader) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if l.base != nil {
		u = l.base.ResolveReference(u)
	}
	return u.String(), nil
}

func (l *HTTPAssetLoader) fetch(ref string) (*DecodedImage, error) {
	if err := l.ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAssetLoad, ref, err)
	}
	target, err := l.resolve(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAssetLoad, ref, err)
	}
	req, err := http.NewRequestWithContext(l.ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAssetLoad, ref, err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAssetLoad, ref, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: status %d", ErrAssetLoad, ref, resp.StatusCode)
	}
	img, format, err := image.Decode(io.LimitReader(resp.Body, maxAssetBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: decode: %v", ErrAssetLoad, ref, err)
	}
	return &DecodedImage{URL: ref, Format: format, Img: img}, nil
}
