package client

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAssetCacheRequestsEachURLOnce(t *testing.T) {
	loader := newFakeLoader()
	loop := newTestLoop()
	cache := NewAssetCache(loader, loop.post, zap.NewNop().Sugar())

	cache.Request("a.png")
	cache.Request("a.png")
	cache.RequestAvatar(Avatar{Name: "knight", Frames: map[Facing][]string{
		FacingNorth: {"n0.png", "a.png"},
		FacingEast:  {"e0.png"},
	}})
	assert.Equal(t, []string{"a.png", "n0.png", "e0.png"}, loader.requested())
	assert.Equal(t, 3, cache.Pending())

	_, ok := cache.Image("a.png")
	assert.False(t, ok, "pending image is not ready")

	loader.resolve("a.png", fakeImage{w: 64, h: 96}, nil)
	loop.drain()
	img, ok := cache.Image("a.png")
	require.True(t, ok)
	w, h := img.Size()
	assert.Equal(t, 64, w)
	assert.Equal(t, 96, h)
	assert.Equal(t, 2, cache.Pending())
}

func TestAssetCacheFailureIsPermanent(t *testing.T) {
	loader := newFakeLoader()
	loop := newTestLoop()
	cache := NewAssetCache(loader, loop.post, nil)

	cache.Request("broken.png")
	loader.resolve("broken.png", nil, errors.New("404"))
	loop.drain()

	assert.True(t, cache.failed("broken.png"))
	_, ok := cache.Image("broken.png")
	assert.False(t, ok)

	cache.Request("broken.png")
	assert.Len(t, loader.requested(), 1, "failed assets are not retried")

	// 没有错误也没有图片同样视为失败
	cache.Request("empty.png")
	loader.resolve("empty.png", nil, nil)
	loop.drain()
	assert.True(t, cache.failed("empty.png"))
}

func TestAssetCacheWithoutLoader(t *testing.T) {
	cache := NewAssetCache(nil, newTestLoop().post, nil)
	cache.Request("a.png")
	assert.Equal(t, 0, cache.Pending())
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 0xff, A: 0xff})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestHTTPAssetLoader(t *testing.T) {
	body := pngBytes(t, 32, 48)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/assets/knight.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(body)
		case "/assets/garbage.png":
			_, _ = w.Write([]byte("not an image"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	loader, err := NewHTTPAssetLoader(context.Background(), srv.URL, 2, srv.Client())
	require.NoError(t, err)

	type result struct {
		img Image
		err error
	}
	load := func(ref string) result {
		ch := make(chan result, 1)
		loader.LoadImage(ref, func(img Image, err error) { ch <- result{img, err} })
		select {
		case r := <-ch:
			return r
		case <-time.After(5 * time.Second):
			t.Fatalf("load %s timed out", ref)
			return result{}
		}
	}

	ok := load("/assets/knight.png")
	require.NoError(t, ok.err)
	w, h := ok.img.Size()
	assert.Equal(t, 32, w)
	assert.Equal(t, 48, h)
	assert.Equal(t, "png", ok.img.(*DecodedImage).Format)

	missing := load("/assets/missing.png")
	assert.ErrorIs(t, missing.err, ErrAssetLoad)

	garbage := load("/assets/garbage.png")
	assert.ErrorIs(t, garbage.err, ErrAssetLoad)

	loader.Wait()
}

func TestHTTPAssetLoaderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	loader, err := NewHTTPAssetLoader(ctx, "http://127.0.0.1:1", 1, nil)
	require.NoError(t, err)

	errc := make(chan error, 1)
	loader.LoadImage("/x.png", func(_ Image, err error) { errc <- err })
	assert.ErrorIs(t, <-errc, ErrAssetLoad)
}
