package client

import (
	"errors"

	"go.uber.org/zap"
)

// ErrAssetLoad 图片加载失败；该帧永久回退为占位绘制
var ErrAssetLoad = errors.New("asset load failed")

// Image 外部加载器返回的图片句柄
type Image interface {
	Size() (w, h int)
}

// AssetLoader 外部图片加载能力。done 可在任意协程回调，且只回调一次
type AssetLoader interface {
	LoadImage(url string, done func(Image, error))
}

type loadState int

const (
	loadPending loadState = iota
	loadReady
	loadFailed
)

type imageSlot struct {
	state loadState
	img   Image
}

// AssetCache 按地址缓存图片；每个地址只请求一次，失败不重试
type AssetCache struct {
	loader AssetLoader
	post   func(func()) bool
	log    *zap.SugaredLogger
	slots  map[string]*imageSlot
}

func NewAssetCache(loader AssetLoader, post func(func()) bool, log *zap.SugaredLogger) *AssetCache {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &AssetCache{loader: loader, post: post, log: log, slots: make(map[string]*imageSlot)}
}

// Request 发起加载（已请求过的地址直接跳过）
func (c *AssetCache) Request(url string) {
	if url == "" || c.loader == nil {
		return
	}
	if _, ok := c.slots[url]; ok {
		return
	}
	slot := &imageSlot{state: loadPending}
	c.slots[url] = slot
	c.loader.LoadImage(url, func(img Image, err error) {
		c.post(func() { c.complete(url, slot, img, err) })
	})
}

// RequestAvatar 请求头像引用的全部帧
func (c *AssetCache) RequestAvatar(a Avatar) {
	for _, url := range a.URLs() {
		c.Request(url)
	}
}

func (c *AssetCache) complete(url string, slot *imageSlot, img Image, err error) {
	if slot.state != loadPending {
		return
	}
	if err == nil && img == nil {
		err = ErrAssetLoad
	}
	if err != nil {
		slot.state = loadFailed
		c.log.Warnf("asset %s: %v", url, err)
		return
	}
	slot.state = loadReady
	slot.img = img
}

// Image 已就绪的图片；未加载、加载中或失败时返回 false
func (c *AssetCache) Image(url string) (Image, bool) {
	slot, ok := c.slots[url]
	if !ok || slot.state != loadReady {
		return nil, false
	}
	return slot.img, true
}

// failed 地址是否加载失败
func (c *AssetCache) failed(url string) bool {
	slot, ok := c.slots[url]
	return ok && slot.state == loadFailed
}

// Pending 仍在加载中的数量
func (c *AssetCache) Pending() int {
	n := 0
	for _, s := range c.slots {
		if s.state == loadPending {
			n++
		}
	}
	return n
}
